package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const maxBatchSize = 100

// OpenAIOptions configures an OpenAI-compatible embedder
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string // Empty uses api.openai.com; any OpenAI-compatible /v1 endpoint works
	Model      string
	Dimensions int // Requested size for text-embedding-3 models, 0 for the model default
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for the given endpoint and model
func NewOpenAIEmbedder(opts OpenAIOptions) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}

	e := &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
	}
	if supportsDimensions(opts.Model) {
		e.dimensions = opts.Dimensions
	}
	return e
}

func supportsDimensions(model string) bool {
	return strings.HasPrefix(model, "text-embedding-3")
}

func (e *OpenAIEmbedder) Name() string { return e.model }

func (e *OpenAIEmbedder) Dimensions() int {
	if e.dimensions > 0 {
		return e.dimensions
	}
	switch e.model {
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	case string(openai.LargeEmbedding3):
		return 3072
	}
	return 0
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		end := min(i+maxBatchSize, len(texts))
		batch := texts[i:end]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding request failed: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("%w: got %d, expected %d", ErrCountMismatch, len(resp.Data), len(batch))
		}

		vectors := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) || vectors[d.Index] != nil {
				return nil, fmt.Errorf("openai returned invalid embedding index %d", d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		out = append(out, vectors...)
	}
	return out, nil
}
