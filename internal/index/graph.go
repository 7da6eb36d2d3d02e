package index

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"

	"github.com/coder/hnsw"
)

const (
	defaultM              = 16
	defaultEfConstruction = 64
	defaultEfSearch       = 48
)

// graphSeed fixes level assignment so a rebuild of the same rows yields the same graph
const graphSeed = 1

type graphParams struct {
	M              int
	EfConstruction int
	EfSearch       int
}

func (p graphParams) withDefaults() graphParams {
	if p.M <= 0 {
		p.M = defaultM
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = defaultEfConstruction
	}
	if p.EfSearch <= 0 {
		p.EfSearch = defaultEfSearch
	}
	return p
}

// graph is an HNSW graph over the index rows. Node keys are row positions,
// so a hit addresses both the vector and its chunk.
type graph struct {
	params graphParams

	mu   sync.Mutex // guards hnsw
	hnsw *hnsw.Graph[int]
}

func newHNSW(p graphParams) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = p.M
	g.EfSearch = p.EfSearch
	g.Distance = hnsw.EuclideanDistance
	g.Rng = rand.New(rand.NewSource(graphSeed))
	return g
}

func buildGraph(vectors [][]float32, p graphParams) *graph {
	p = p.withDefaults()
	g := newHNSW(p)

	// Insertion searches with the construction beam, queries with EfSearch
	g.EfSearch = p.EfConstruction
	nodes := make([]hnsw.Node[int], len(vectors))
	for i, v := range vectors {
		nodes[i] = hnsw.MakeNode(i, v)
	}
	g.Add(nodes...)
	g.EfSearch = p.EfSearch

	return &graph{params: p, hnsw: g}
}

// export serialises the graph for the index file
func (g *graph) export() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var buf bytes.Buffer
	if err := g.hnsw.Export(&buf); err != nil {
		return nil, fmt.Errorf("failed to export graph: %w", err)
	}
	return buf.Bytes(), nil
}

// importGraph restores an exported graph and checks that it covers exactly
// rows 0..rows-1.
func importGraph(data []byte, p graphParams, rows int) (*graph, error) {
	p = p.withDefaults()
	h := newHNSW(p)
	if err := h.Import(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	h.Distance = hnsw.EuclideanDistance
	h.EfSearch = p.EfSearch

	if h.Len() != rows {
		return nil, fmt.Errorf("graph has %d nodes for %d rows", h.Len(), rows)
	}
	for row := 0; row < rows; row++ {
		if _, ok := h.Lookup(row); !ok {
			return nil, fmt.Errorf("graph has no node for row %d", row)
		}
	}
	return &graph{params: p, hnsw: h}, nil
}

// search returns the k rows nearest to q. The graph is asked for
// max(EfSearch, k) candidates; when it yields fewer than k rows the search
// falls back to an exact scan.
func (g *graph) search(vectors [][]float32, q []float32, k int) []scored {
	g.mu.Lock()
	nodes := g.hnsw.Search(q, max(g.params.EfSearch, k))
	g.mu.Unlock()

	rows := make([]scored, 0, len(nodes))
	for _, n := range nodes {
		if n.Key < 0 || n.Key >= len(vectors) {
			continue
		}
		rows = append(rows, scored{row: n.Key, dist2: squaredDistance(q, vectors[n.Key])})
	}
	if len(rows) < k {
		rows = make([]scored, len(vectors))
		for i, v := range vectors {
			rows[i] = scored{row: i, dist2: squaredDistance(q, v)}
		}
	}
	sortScored(rows)
	return rows[:k]
}
