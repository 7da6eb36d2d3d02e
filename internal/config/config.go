// Package config provides configuration management for SiteDex.
// It defines configuration structures and default values for crawling,
// caching, chunking, embedding and index parameters.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// CrawlConfig holds crawler and fetcher configuration
type CrawlConfig struct {
	MaxDepth            int           `mapstructure:"max_depth" yaml:"max_depth"`                         // Depth bound, root is depth 0
	Concurrency         int           `mapstructure:"concurrency" yaml:"concurrency"`                     // Parallel fetches per frontier batch
	RequestDelay        time.Duration `mapstructure:"request_delay" yaml:"request_delay"`                 // Minimum delay between requests to one host
	RequestTimeout      time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`             // HTTP request timeout
	UserAgent           string        `mapstructure:"user_agent" yaml:"user_agent"`                       // HTTP User-Agent header
	RespectRobots       bool          `mapstructure:"respect_robots" yaml:"respect_robots"`               // Whether to respect robots.txt
	FollowExternalHosts bool          `mapstructure:"follow_external_hosts" yaml:"follow_external_hosts"` // Allow links to other hosts
	Limit               int           `mapstructure:"limit" yaml:"limit"`                                 // Maximum pages in the crawl tree (0=unlimited)
	Headers             []string      `mapstructure:"headers" yaml:"headers"`                             // Custom headers in "Name: Value" form
	IncludePatterns     []string      `mapstructure:"include_patterns" yaml:"include_patterns"`           // Regex patterns for URLs to include
	ExcludePatterns     []string      `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`           // Regex patterns for URLs to exclude
	ExcludePaths        []string      `mapstructure:"exclude_paths" yaml:"exclude_paths"`                 // Glob patterns (** allowed) for URL paths to skip
}

// CacheConfig holds content cache configuration
type CacheConfig struct {
	Dir           string        `mapstructure:"dir" yaml:"dir"`                       // Root directory of the page cache
	LockTimeout   time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`     // Give up acquiring a write lock after this long
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"` // Delay between lock attempts
	LeaseTTL      time.Duration `mapstructure:"lease_ttl" yaml:"lease_ttl"`           // Lock markers older than this are stale
}

// ChunkConfig holds text splitting configuration
type ChunkConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`       // Target segment size in characters
	Overlap int `mapstructure:"overlap" yaml:"overlap"` // Characters shared by consecutive segments
}

// EmbeddingConfig selects and configures the embedding model
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`       // "hash" or "openai"
	Model      string `mapstructure:"model" yaml:"model"`             // Model name sent to the provider
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`       // OpenAI-compatible endpoint (empty = api.openai.com)
	APIKeyEnv  string `mapstructure:"api_key_env" yaml:"api_key_env"` // Environment variable holding the API key
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`   // Vector size (hash) or requested size (text-embedding-3, 0=model default)
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size"`   // Texts per embedding call
	Workers    int    `mapstructure:"workers" yaml:"workers"`         // Concurrent embedding batches
}

// IndexConfig holds vector index configuration
type IndexConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir"`                         // Directory holding <name>.index files
	Mode           string `mapstructure:"mode" yaml:"mode"`                       // "flat" (exact) or "graph" (approximate)
	M              int    `mapstructure:"m" yaml:"m"`                             // Graph neighbours per node
	EfConstruction int    `mapstructure:"ef_construction" yaml:"ef_construction"` // Graph build beam width
	EfSearch       int    `mapstructure:"ef_search" yaml:"ef_search"`             // Graph search beam width
	TopK           int    `mapstructure:"top_k" yaml:"top_k"`                     // Default number of results per query
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json or text
	File       string `mapstructure:"file" yaml:"file"`               // Optional rotated log file
	MaxSizeMB  int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"` // Rotate after this many MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // Rotated files to keep
}

// Config is the root configuration
type Config struct {
	Crawl     CrawlConfig     `mapstructure:"crawl" yaml:"crawl"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Chunk     ChunkConfig     `mapstructure:"chunk" yaml:"chunk"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Index     IndexConfig     `mapstructure:"index" yaml:"index"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxDepth:       1,
			Concurrency:    4,
			RequestDelay:   200 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			UserAgent:      "SiteDex/1.0",
			RespectRobots:  true,
		},
		Cache: CacheConfig{
			Dir:           "./data/cache",
			LockTimeout:   30 * time.Second,
			RetryInterval: 100 * time.Millisecond,
			LeaseTTL:      2 * time.Minute,
		},
		Chunk: ChunkConfig{
			Size:    384,
			Overlap: 64,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Model:      "text-embedding-3-small",
			APIKeyEnv:  "OPENAI_API_KEY",
			Dimensions: 512,
			BatchSize:  32,
			Workers:    4,
		},
		Index: IndexConfig{
			Dir:            "./data/indexes",
			Mode:           "flat",
			M:              16,
			EfConstruction: 64,
			EfSearch:       48,
			TopK:           5,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Crawl.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Crawl.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Crawl.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Crawl.RequestDelay < 0 {
		c.Crawl.RequestDelay = 0
	}
	if _, err := c.Crawl.ParseHeaders(); err != nil {
		return err
	}

	if c.Cache.Dir == "" {
		return ErrEmptyCacheDir
	}
	if c.Cache.LockTimeout <= 0 {
		return ErrInvalidLockTimeout
	}
	if c.Cache.RetryInterval <= 0 {
		c.Cache.RetryInterval = 100 * time.Millisecond
	}

	if c.Chunk.Size <= 0 {
		return ErrInvalidChunkSize
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return ErrInvalidChunkOverlap
	}

	switch c.Embedding.Provider {
	case "hash":
		if c.Embedding.Dimensions <= 0 {
			return ErrInvalidDimensions
		}
	case "openai":
	default:
		return ErrUnknownProvider
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 1
	}

	if c.Index.Dir == "" {
		return ErrEmptyIndexDir
	}
	if c.Index.Mode != "flat" && c.Index.Mode != "graph" {
		return ErrUnknownIndexMode
	}

	return nil
}

// ParseHeaders converts the "Name: Value" header list into a map
func (c *CrawlConfig) ParseHeaders() (map[string]string, error) {
	headers := make(map[string]string, len(c.Headers))
	for _, h := range c.Headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, h)
		}
		headers[name] = value
	}
	return headers, nil
}

// APIKey resolves the embedding API key from the configured environment variable
func (c *Config) APIKey() string {
	if c.Embedding.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Embedding.APIKeyEnv)
}
