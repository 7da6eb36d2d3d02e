package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Pool splits texts into batches and embeds them on a bounded number of
// goroutines, reassembling results in input order. Pool is itself an Embedder.
type Pool struct {
	embedder  Embedder
	batchSize int
	workers   int
}

// NewPool wraps e. Non-positive batchSize or workers default to 32 and 1.
func NewPool(e Embedder, batchSize, workers int) *Pool {
	if batchSize <= 0 {
		batchSize = 32
	}
	if workers <= 0 {
		workers = 1
	}
	return &Pool{embedder: e, batchSize: batchSize, workers: workers}
}

func (p *Pool) Name() string { return p.embedder.Name() }

func (p *Pool) Dimensions() int { return p.embedder.Dimensions() }

// Embed returns one vector per text. The first batch error cancels the rest.
func (p *Pool) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := p.embedder.Embed(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("%w: batch %d-%d returned %d vectors", ErrCountMismatch, start, end, len(vectors))
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
