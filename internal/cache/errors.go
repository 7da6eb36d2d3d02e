package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Load when no entry exists for a URL
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorruptEntry matches every *CorruptEntryError via errors.Is
	ErrCorruptEntry = errors.New("cache entry corrupt")
	// ErrLockTimeout is returned when the write lock could not be acquired in time
	ErrLockTimeout = errors.New("timed out acquiring cache lock")
)

// CorruptEntryError reports an entry that exists but cannot be decoded
type CorruptEntryError struct {
	URL  string
	Path string
	Err  error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt cache entry for %s (%s): %v", e.URL, e.Path, e.Err)
}

func (e *CorruptEntryError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCorruptEntry) match
func (e *CorruptEntryError) Is(target error) bool { return target == ErrCorruptEntry }
