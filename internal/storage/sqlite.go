// Package storage persists vector indexes as single SQLite files.
// A file holds the index metadata, the chunk texts, one vector per chunk
// keyed by row position and, for graph indexes, the exported HNSW graph.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no index file exists at a path
	ErrNotFound = errors.New("index file not found")
	// ErrCorrupt is returned when an index file is inconsistent
	ErrCorrupt = errors.New("index file corrupt")
	// ErrUnsupportedVersion is returned for files written by an incompatible version
	ErrUnsupportedVersion = errors.New("unsupported index file version")
)

// Meta describes a persisted index
type Meta struct {
	Name           string
	Mode           string
	Model          string
	Dimensions     int
	Count          int
	M              int
	EfConstruction int
	EfSearch       int
	CreatedAt      time.Time
}

// Snapshot is the full content of an index file. Chunks[i] and Vectors[i]
// describe the same row; Graph, when present, uses row positions as keys.
type Snapshot struct {
	Meta    Meta
	Chunks  []string
	Vectors [][]float32
	Graph   []byte
}

// SQLiteStorage is an open index file
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates the index file at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	storage := &SQLiteStorage{db: db}
	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// InitSchema applies pragmas and creates the tables
func (s *SQLiteStorage) InitSchema() error {
	// Rollback journal rather than WAL: the file is renamed into place and
	// must be self-contained once closed.
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM index_meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// SaveSnapshot replaces the file's content with snap in one transaction
func (s *SQLiteStorage) SaveSnapshot(snap *Snapshot) error {
	if len(snap.Chunks) != len(snap.Vectors) {
		return fmt.Errorf("%w: %d chunks for %d vectors", ErrCorrupt, len(snap.Chunks), len(snap.Vectors))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"graph", "vectors", "chunks", "index_meta"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	m := snap.Meta
	meta := map[string]string{
		"format_version":  strconv.Itoa(formatVersion),
		"name":            m.Name,
		"mode":            m.Mode,
		"model":           m.Model,
		"dimensions":      strconv.Itoa(m.Dimensions),
		"count":           strconv.Itoa(len(snap.Vectors)),
		"m":               strconv.Itoa(m.M),
		"ef_construction": strconv.Itoa(m.EfConstruction),
		"ef_search":       strconv.Itoa(m.EfSearch),
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT INTO index_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to insert meta %s: %w", k, err)
		}
	}

	chunkStmt, err := tx.Prepare("INSERT INTO chunks (pos, text) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = chunkStmt.Close() }()

	vectorStmt, err := tx.Prepare("INSERT INTO vectors (pos, data) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = vectorStmt.Close() }()

	for i, text := range snap.Chunks {
		if len(snap.Vectors[i]) != m.Dimensions {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrCorrupt, i, len(snap.Vectors[i]), m.Dimensions)
		}
		if _, err := chunkStmt.Exec(i, text); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		if _, err := vectorStmt.Exec(i, SerializeVector(snap.Vectors[i])); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}

	if snap.Graph != nil {
		if _, err := tx.Exec("INSERT INTO graph (id, data) VALUES (1, ?)", snap.Graph); err != nil {
			return fmt.Errorf("failed to insert graph: %w", err)
		}
	}

	return tx.Commit()
}

// LoadMeta reads the metadata only
func (s *SQLiteStorage) LoadMeta() (*Meta, error) {
	rows, err := s.db.Query("SELECT key, value FROM index_meta")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer func() { _ = rows.Close() }()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan meta: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read meta: %w", err)
	}

	version, err := strconv.Atoi(values["format_version"])
	if err != nil {
		return nil, fmt.Errorf("%w: missing format version", ErrCorrupt)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	meta := &Meta{
		Name:  values["name"],
		Mode:  values["mode"],
		Model: values["model"],
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"dimensions", &meta.Dimensions},
		{"count", &meta.Count},
		{"m", &meta.M},
		{"ef_construction", &meta.EfConstruction},
		{"ef_search", &meta.EfSearch},
	}
	for _, f := range ints {
		n, err := strconv.Atoi(values[f.key])
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s %q", ErrCorrupt, f.key, values[f.key])
		}
		*f.dst = n
	}
	if ts, err := time.Parse(time.RFC3339Nano, values["created_at"]); err == nil {
		meta.CreatedAt = ts
	}
	return meta, nil
}

// LoadSnapshot reads the whole index and checks row alignment
func (s *SQLiteStorage) LoadSnapshot() (*Snapshot, error) {
	meta, err := s.LoadMeta()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Meta:    *meta,
		Chunks:  make([]string, 0, meta.Count),
		Vectors: make([][]float32, 0, meta.Count),
	}

	rows, err := s.db.Query(`
		SELECT c.pos, c.text, v.data
		FROM chunks c JOIN vectors v ON v.pos = c.pos
		ORDER BY c.pos
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var pos int
		var text string
		var data []byte
		if err := rows.Scan(&pos, &text, &data); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if pos != len(snap.Chunks) {
			return nil, fmt.Errorf("%w: missing row %d", ErrCorrupt, len(snap.Chunks))
		}
		if len(data) != meta.Dimensions*4 {
			return nil, fmt.Errorf("%w: vector %d is %d bytes", ErrCorrupt, pos, len(data))
		}
		snap.Chunks = append(snap.Chunks, text)
		snap.Vectors = append(snap.Vectors, DeserializeVector(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	if len(snap.Chunks) != meta.Count {
		return nil, fmt.Errorf("%w: %d rows, meta says %d", ErrCorrupt, len(snap.Chunks), meta.Count)
	}

	var graph []byte
	err = s.db.QueryRow("SELECT data FROM graph WHERE id = 1").Scan(&graph)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read graph: %w", err)
	default:
		snap.Graph = graph
	}
	return snap, nil
}

// WriteIndexFile writes snap to a temporary file next to path and renames
// it into place, so readers see either the old or the new index.
func WriteIndexFile(path string, snap *Snapshot) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
			_ = os.Remove(tmp + "-journal")
		}
	}()

	s, err := NewSQLiteStorage(tmp)
	if err != nil {
		return err
	}
	if err := s.SaveSnapshot(snap); err != nil {
		_ = s.Close()
		return err
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish index file: %w", err)
	}
	return nil
}

// openExisting opens path without creating it
func openExisting(path string) (*SQLiteStorage, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat index file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrCorrupt, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 30000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &SQLiteStorage{db: db}, nil
}

// ReadIndexFile loads the snapshot stored at path
func ReadIndexFile(path string) (*Snapshot, error) {
	s, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	return s.LoadSnapshot()
}

// ReadIndexMeta loads only the metadata stored at path
func ReadIndexMeta(path string) (*Meta, error) {
	s, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	return s.LoadMeta()
}
