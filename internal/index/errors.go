package index

import "errors"

var (
	// ErrMissingChunks is returned when an index must be built from no chunks
	ErrMissingChunks = errors.New("no chunks to index")
	// ErrIndexNotBuilt is returned when searching a nil or empty index
	ErrIndexNotBuilt = errors.New("index not built")
	// ErrDimensionMismatch is returned when vector sizes disagree
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrUnknownMode is returned for an index mode other than flat or graph
	ErrUnknownMode = errors.New("unknown index mode")
	// ErrInvalidName is returned for index names that are not plain file names
	ErrInvalidName = errors.New("invalid index name")
	// ErrLengthMismatch is returned when chunks and vectors are not aligned
	ErrLengthMismatch = errors.New("chunks and vectors length mismatch")
)
