// Package index builds and searches nearest-neighbour indexes over chunk
// embeddings and persists them through internal/storage.
package index

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Index modes
const (
	ModeFlat  = "flat"
	ModeGraph = "graph"
)

// Options controls how an index is built
type Options struct {
	Name           string
	Mode           string // ModeFlat or ModeGraph
	Model          string // embedder name recorded in the index file
	M              int    // graph neighbours per node
	EfConstruction int    // graph build beam width
	EfSearch       int    // graph search beam width
}

// Hit is one search result. Row addresses both the vector and its chunk.
type Hit struct {
	Row      int
	Distance float32
	Score    float32
}

// Index is a built, immutable vector index with the chunk texts it covers
type Index struct {
	name      string
	mode      string
	model     string
	dims      int
	createdAt time.Time
	vectors   [][]float32
	chunks    []string
	graph     *graph
}

// Build normalises vectors to unit length and indexes them. chunks[i] is the
// text embedded as vectors[i].
func Build(vectors [][]float32, chunks []string, opts Options) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrMissingChunks
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}
	if opts.Mode == "" {
		opts.Mode = ModeFlat
	}
	if opts.Mode != ModeFlat && opts.Mode != ModeGraph {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: row %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dims)
		}
		normalized[i] = normalize(v)
	}

	idx := &Index{
		name:      opts.Name,
		mode:      opts.Mode,
		model:     opts.Model,
		dims:      dims,
		createdAt: time.Now().UTC(),
		vectors:   normalized,
		chunks:    slices.Clone(chunks),
	}
	if opts.Mode == ModeGraph {
		idx.graph = buildGraph(normalized, graphParams{
			M:              opts.M,
			EfConstruction: opts.EfConstruction,
			EfSearch:       opts.EfSearch,
		})
	}
	return idx, nil
}

// Name returns the index name
func (idx *Index) Name() string { return idx.name }

// Mode returns ModeFlat or ModeGraph
func (idx *Index) Mode() string { return idx.mode }

// Model returns the name of the embedder that produced the vectors
func (idx *Index) Model() string { return idx.model }

// Dimensions returns the vector size
func (idx *Index) Dimensions() int { return idx.dims }

// Len returns the number of indexed rows
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.vectors)
}

// CreatedAt returns the build time
func (idx *Index) CreatedAt() time.Time { return idx.createdAt }

// Chunk returns the text stored at row
func (idx *Index) Chunk(row int) string { return idx.chunks[row] }

// Search returns the min(k, Len()) rows nearest to query, best first.
// A query of the wrong size yields no hits.
func (idx *Index) Search(query []float32, k int) []Hit {
	if idx.Len() == 0 || k <= 0 || len(query) != idx.dims {
		return nil
	}
	k = min(k, len(idx.vectors))
	q := normalize(query)

	var rows []scored
	if idx.graph != nil {
		rows = idx.graph.search(idx.vectors, q, k)
	} else {
		rows = make([]scored, len(idx.vectors))
		for i, v := range idx.vectors {
			rows[i] = scored{row: i, dist2: squaredDistance(q, v)}
		}
		sortScored(rows)
		rows = rows[:k]
	}

	hits := make([]Hit, len(rows))
	for i, r := range rows {
		hits[i] = Hit{
			Row:      r.row,
			Distance: float32(math.Sqrt(float64(r.dist2))),
			Score:    1 - r.dist2/2,
		}
	}
	return hits
}

type scored struct {
	row   int
	dist2 float32
}

// sortScored orders by distance, then row, so ties are deterministic
func sortScored(rows []scored) {
	slices.SortFunc(rows, func(a, b scored) int {
		if a.dist2 < b.dist2 {
			return -1
		}
		if a.dist2 > b.dist2 {
			return 1
		}
		return a.row - b.row
	})
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
