// Package embedding maps texts to fixed-size vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/masahif/sitedex/internal/config"
)

// Embedder generates text embeddings
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 when only known after a call.
	Dimensions() int

	// Name identifies the model; indexes record it to detect mismatches.
	Name() string
}

var (
	// ErrUnknownProvider is returned for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown embedding provider")
	// ErrMissingAPIKey is returned when the openai provider has no key and no base URL
	ErrMissingAPIKey = errors.New("embedding API key not set")
	// ErrCountMismatch is returned when a provider returns the wrong number of vectors
	ErrCountMismatch = errors.New("embedding count mismatch")
)

// FromConfig builds the configured embedder wrapped in a worker Pool
func FromConfig(cfg config.EmbeddingConfig, apiKey string) (*Pool, error) {
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "hash":
		e = NewHashEmbedder(cfg.Dimensions)
	case "openai":
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, cfg.APIKeyEnv)
		}
		e = NewOpenAIEmbedder(OpenAIOptions{
			APIKey:     apiKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return NewPool(e, cfg.BatchSize, cfg.Workers), nil
}
