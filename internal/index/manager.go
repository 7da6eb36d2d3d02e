package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/masahif/sitedex/internal/embedding"
	"github.com/masahif/sitedex/internal/storage"
)

const fileExt = ".index"

// ManagerOptions configures a Manager
type ManagerOptions struct {
	Dir            string
	Mode           string
	M              int
	EfConstruction int
	EfSearch       int
	Logger         *slog.Logger
}

// Manager builds, persists and searches named indexes. Operations on the
// same name are serialised: builds take the write side of the name's lock,
// loads and searches the read side.
type Manager struct {
	dir      string
	opts     ManagerOptions
	embedder embedding.Embedder
	locks    *keyedLock
	logger   *slog.Logger
}

// NewManager creates a manager storing index files under opts.Dir
func NewManager(embedder embedding.Embedder, opts ManagerOptions) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("index directory is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeFlat
	}
	if opts.Mode != ModeFlat && opts.Mode != ModeGraph {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		dir:      opts.Dir,
		opts:     opts,
		embedder: embedder,
		locks:    newKeyedLock(),
		logger:   logger,
	}, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Path returns the file backing the named index
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name+fileExt)
}

// Exists reports whether a persisted index with this name exists
func (m *Manager) Exists(name string) bool {
	if validateName(name) != nil {
		return false
	}
	info, err := os.Stat(m.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// GetOrBuild loads the named index when it is persisted, ignoring chunks.
// Otherwise it embeds chunks, builds the index and saves it.
func (m *Manager) GetOrBuild(ctx context.Context, chunks []string, name string) (*Index, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(name)
	defer unlock()

	if m.Exists(name) {
		m.logger.Info("Loading persisted index", "name", name)
		return m.load(name)
	}

	if len(chunks) == 0 {
		return nil, ErrMissingChunks
	}

	start := time.Now()
	vectors, err := m.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	m.logger.Info("Embedded chunks",
		"name", name,
		"chunks", len(chunks),
		"model", m.embedder.Name(),
		"duration", time.Since(start))

	idx, err := Build(vectors, chunks, Options{
		Name:           name,
		Mode:           m.opts.Mode,
		Model:          m.embedder.Name(),
		M:              m.opts.M,
		EfConstruction: m.opts.EfConstruction,
		EfSearch:       m.opts.EfSearch,
	})
	if err != nil {
		return nil, err
	}

	if err := m.save(idx); err != nil {
		return nil, err
	}
	m.logger.Info("Index built", "name", name, "mode", idx.Mode(), "rows", idx.Len())
	return idx, nil
}

// Save persists idx under its name, replacing any existing file
func (m *Manager) Save(idx *Index) error {
	if idx.Len() == 0 {
		return ErrIndexNotBuilt
	}
	if err := validateName(idx.Name()); err != nil {
		return err
	}
	unlock := m.locks.Lock(idx.Name())
	defer unlock()
	return m.save(idx)
}

func (m *Manager) save(idx *Index) error {
	snap, err := idx.snapshot()
	if err != nil {
		return fmt.Errorf("failed to save index %s: %w", idx.name, err)
	}
	if err := storage.WriteIndexFile(m.Path(idx.name), snap); err != nil {
		return fmt.Errorf("failed to save index %s: %w", idx.name, err)
	}
	return nil
}

// Load reads the named index from disk
func (m *Manager) Load(name string) (*Index, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	unlock := m.locks.RLock(name)
	defer unlock()
	return m.load(name)
}

func (m *Manager) load(name string) (*Index, error) {
	snap, err := storage.ReadIndexFile(m.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", name, err)
	}

	if want := m.embedder.Dimensions(); want > 0 && want != snap.Meta.Dimensions {
		return nil, fmt.Errorf("%w: index %s has %d dimensions, embedder %s produces %d",
			ErrDimensionMismatch, name, snap.Meta.Dimensions, m.embedder.Name(), want)
	}
	if snap.Meta.Model != m.embedder.Name() {
		m.logger.Warn("Index was built with a different embedder",
			"name", name,
			"index_model", snap.Meta.Model,
			"embedder", m.embedder.Name())
	}

	snap.Meta.Name = name
	return fromSnapshot(snap)
}

// Invalidate removes the persisted index so the next GetOrBuild rebuilds it
func (m *Manager) Invalidate(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	unlock := m.locks.Lock(name)
	defer unlock()

	if err := os.Remove(m.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove index %s: %w", name, err)
	}
	m.logger.Info("Index invalidated", "name", name)
	return nil
}

// List returns metadata of every persisted index, sorted by name.
// Unreadable files are logged and skipped.
func (m *Manager) List() ([]storage.Meta, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read index directory: %w", err)
	}

	var metas []storage.Meta
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fileExt)
		if !ok || e.IsDir() || validateName(name) != nil {
			continue
		}
		meta, err := storage.ReadIndexMeta(m.Path(name))
		if err != nil {
			m.logger.Warn("Skipping unreadable index", "file", e.Name(), "error", err)
			continue
		}
		meta.Name = name
		metas = append(metas, *meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}

// Search embeds queries and returns, per query, the scores and chunk texts
// of the k nearest rows, best first.
func (m *Manager) Search(ctx context.Context, idx *Index, queries []string, k int) ([][]float32, [][]string, error) {
	if idx.Len() == 0 {
		return nil, nil, ErrIndexNotBuilt
	}

	// Unnamed indexes were never registered with the manager
	if idx.name != "" {
		unlock := m.locks.RLock(idx.name)
		defer unlock()
	}

	vectors, err := m.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to embed queries: %w", err)
	}

	scores := make([][]float32, len(queries))
	texts := make([][]string, len(queries))
	for i, q := range vectors {
		if len(q) != idx.dims {
			return nil, nil, fmt.Errorf("%w: query has %d dimensions, index %d", ErrDimensionMismatch, len(q), idx.dims)
		}
		hits := idx.Search(q, k)
		scores[i] = make([]float32, len(hits))
		texts[i] = make([]string, len(hits))
		for j, h := range hits {
			scores[i][j] = h.Score
			texts[i][j] = idx.chunks[h.Row]
		}
	}
	return scores, texts, nil
}
