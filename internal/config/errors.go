package config

import "errors"

var (
	// ErrInvalidMaxDepth is returned when max_depth is negative
	ErrInvalidMaxDepth = errors.New("crawl.max_depth cannot be negative")
	// ErrInvalidConcurrency is returned when concurrency is not greater than 0
	ErrInvalidConcurrency = errors.New("crawl.concurrency must be greater than 0")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("crawl.request_timeout must be greater than 0")
	// ErrInvalidHeader is returned for a custom header not in "Name: Value" form
	ErrInvalidHeader = errors.New("crawl.headers entries must be in 'Name: Value' format")
	// ErrEmptyCacheDir is returned when the cache directory is empty
	ErrEmptyCacheDir = errors.New("cache.dir cannot be empty")
	// ErrInvalidLockTimeout is returned when the lock timeout is not greater than 0
	ErrInvalidLockTimeout = errors.New("cache.lock_timeout must be greater than 0")
	// ErrInvalidChunkSize is returned when the chunk size is not greater than 0
	ErrInvalidChunkSize = errors.New("chunk.size must be greater than 0")
	// ErrInvalidChunkOverlap is returned when overlap is negative or not smaller than size
	ErrInvalidChunkOverlap = errors.New("chunk.overlap must be >= 0 and smaller than chunk.size")
	// ErrUnknownProvider is returned for an unsupported embedding provider
	ErrUnknownProvider = errors.New("embedding.provider must be 'hash' or 'openai'")
	// ErrInvalidDimensions is returned when the hash embedder has no dimensions
	ErrInvalidDimensions = errors.New("embedding.dimensions must be greater than 0")
	// ErrEmptyIndexDir is returned when the index directory is empty
	ErrEmptyIndexDir = errors.New("index.dir cannot be empty")
	// ErrUnknownIndexMode is returned for an unsupported index mode
	ErrUnknownIndexMode = errors.New("index.mode must be 'flat' or 'graph'")
)
