package chunker

import "errors"

var (
	// ErrInvalidSize is returned when the target size is not positive
	ErrInvalidSize = errors.New("chunk size must be positive")
	// ErrInvalidOverlap is returned when overlap is negative or not smaller than size
	ErrInvalidOverlap = errors.New("chunk overlap must be >= 0 and smaller than chunk size")
)
