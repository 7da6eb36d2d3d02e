package pipeline

import "fmt"

// Pipeline stages reported in StageError
const (
	StageCrawl = "crawl"
	StageChunk = "chunk"
	StageIndex = "index"
	StageLoad  = "load"
)

// StageError reports which stage of an indexing run failed
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
