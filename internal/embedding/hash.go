package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder using signed feature hashing over
// word unigrams and bigrams. Texts sharing vocabulary get similar vectors.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder producing dims-sized vectors
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 512
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Name() string { return fmt.Sprintf("hash-%d", h.dims) }

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	counts := make(map[string]int)
	tokens := tokenize(text)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	v := make([]float32, h.dims)
	for feature, n := range counts {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(feature))
		sum := hasher.Sum64()

		weight := float32(1 + math.Log(float64(n)))
		if sum>>63 == 1 {
			weight = -weight
		}
		v[sum%uint64(h.dims)] += weight
	}
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
