package index

import (
	"fmt"

	"github.com/masahif/sitedex/internal/storage"
)

func (idx *Index) snapshot() (*storage.Snapshot, error) {
	snap := &storage.Snapshot{
		Meta: storage.Meta{
			Name:       idx.name,
			Mode:       idx.mode,
			Model:      idx.model,
			Dimensions: idx.dims,
			Count:      len(idx.vectors),
			CreatedAt:  idx.createdAt,
		},
		Chunks:  idx.chunks,
		Vectors: idx.vectors,
	}
	if idx.graph != nil {
		snap.Meta.M = idx.graph.params.M
		snap.Meta.EfConstruction = idx.graph.params.EfConstruction
		snap.Meta.EfSearch = idx.graph.params.EfSearch
		data, err := idx.graph.export()
		if err != nil {
			return nil, err
		}
		snap.Graph = data
	}
	return snap, nil
}

// fromSnapshot restores an index without re-normalising or rebuilding the graph
func fromSnapshot(snap *storage.Snapshot) (*Index, error) {
	m := snap.Meta
	if len(snap.Chunks) == 0 {
		return nil, fmt.Errorf("%w: index %s is empty", ErrIndexNotBuilt, m.Name)
	}
	if len(snap.Chunks) != len(snap.Vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(snap.Chunks), len(snap.Vectors))
	}

	idx := &Index{
		name:      m.Name,
		mode:      m.Mode,
		model:     m.Model,
		dims:      m.Dimensions,
		createdAt: m.CreatedAt,
		vectors:   snap.Vectors,
		chunks:    snap.Chunks,
	}

	switch m.Mode {
	case ModeFlat:
	case ModeGraph:
		if len(snap.Graph) == 0 {
			return nil, fmt.Errorf("%w: graph index %s has no graph", storage.ErrCorrupt, m.Name)
		}
		g, err := importGraph(snap.Graph, graphParams{
			M:              m.M,
			EfConstruction: m.EfConstruction,
			EfSearch:       m.EfSearch,
		}, len(snap.Vectors))
		if err != nil {
			return nil, fmt.Errorf("%w: index %s: %v", storage.ErrCorrupt, m.Name, err)
		}
		idx.graph = g
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, m.Mode)
	}
	return idx, nil
}
