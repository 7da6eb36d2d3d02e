package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Meta: Meta{
			Name:           "https___example_com",
			Mode:           "graph",
			Model:          "hash-3",
			Dimensions:     3,
			M:              8,
			EfConstruction: 32,
			EfSearch:       16,
			CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Chunks: []string{"alpha", "beta", "gamma"},
		Vectors: [][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0.6, 0.8},
		},
		Graph: []byte("exported graph"),
	}
}

func TestSQLiteStorage(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "test.index")

	storage, err := NewSQLiteStorage(dbFile)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	t.Run("SetAndGetMeta", func(t *testing.T) {
		if err := storage.SetMeta("k", "v1"); err != nil {
			t.Fatalf("SetMeta failed: %v", err)
		}
		if err := storage.SetMeta("k", "v2"); err != nil {
			t.Fatalf("SetMeta failed: %v", err)
		}
		got, err := storage.GetMeta("k")
		if err != nil {
			t.Fatalf("GetMeta failed: %v", err)
		}
		if got != "v2" {
			t.Errorf("Expected v2, got %q", got)
		}
	})

	t.Run("SnapshotRoundTrip", func(t *testing.T) {
		want := testSnapshot()
		if err := storage.SaveSnapshot(want); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}

		got, err := storage.LoadSnapshot()
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}

		if got.Meta.Count != 3 {
			t.Errorf("Expected count 3, got %d", got.Meta.Count)
		}
		if got.Meta.Name != want.Meta.Name || got.Meta.Mode != "graph" || got.Meta.Model != "hash-3" {
			t.Errorf("Meta mismatch: %+v", got.Meta)
		}
		if got.Meta.EfConstruction != 32 || got.Meta.M != 8 || got.Meta.EfSearch != 16 {
			t.Errorf("Graph params mismatch: %+v", got.Meta)
		}
		if !got.Meta.CreatedAt.Equal(want.Meta.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.Meta.CreatedAt, want.Meta.CreatedAt)
		}
		for i := range want.Chunks {
			if got.Chunks[i] != want.Chunks[i] {
				t.Errorf("Chunk %d = %q, want %q", i, got.Chunks[i], want.Chunks[i])
			}
			for j := range want.Vectors[i] {
				if got.Vectors[i][j] != want.Vectors[i][j] {
					t.Errorf("Vector %d[%d] = %v, want %v", i, j, got.Vectors[i][j], want.Vectors[i][j])
				}
			}
		}
		if !bytes.Equal(got.Graph, want.Graph) {
			t.Errorf("Graph = %q, want %q", got.Graph, want.Graph)
		}
	})

	t.Run("SaveReplacesContent", func(t *testing.T) {
		snap := testSnapshot()
		snap.Meta.Mode = "flat"
		snap.Chunks = snap.Chunks[:1]
		snap.Vectors = snap.Vectors[:1]
		snap.Graph = nil
		if err := storage.SaveSnapshot(snap); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}

		got, err := storage.LoadSnapshot()
		if err != nil {
			t.Fatalf("LoadSnapshot failed: %v", err)
		}
		if len(got.Chunks) != 1 || got.Graph != nil {
			t.Errorf("Expected 1 chunk and no graph, got %d chunks, graph %q", len(got.Chunks), got.Graph)
		}
	})
}

func TestSaveSnapshotRejectsMisalignment(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "bad.index"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = storage.Close() }()

	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"FewerVectors", func(s *Snapshot) { s.Vectors = s.Vectors[:2] }},
		{"WrongDimensions", func(s *Snapshot) { s.Vectors[2] = []float32{1, 0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := testSnapshot()
			tt.mutate(snap)
			if err := storage.SaveSnapshot(snap); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestIndexFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "site.index")

	if err := WriteIndexFile(path, testSnapshot()); err != nil {
		t.Fatalf("WriteIndexFile failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "site.index" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only site.index, got %v", names)
	}

	meta, err := ReadIndexMeta(path)
	if err != nil {
		t.Fatalf("ReadIndexMeta failed: %v", err)
	}
	if meta.Count != 3 || meta.Dimensions != 3 {
		t.Errorf("Unexpected meta: %+v", meta)
	}

	snap, err := ReadIndexFile(path)
	if err != nil {
		t.Fatalf("ReadIndexFile failed: %v", err)
	}
	if snap.Chunks[2] != "gamma" || snap.Vectors[2][2] != 0.8 {
		t.Errorf("Row 2 misaligned: %q %v", snap.Chunks[2], snap.Vectors[2])
	}

	// Overwriting publishes the new content in place
	replacement := testSnapshot()
	replacement.Chunks[0] = "delta"
	if err := WriteIndexFile(path, replacement); err != nil {
		t.Fatalf("WriteIndexFile overwrite failed: %v", err)
	}
	snap, err = ReadIndexFile(path)
	if err != nil {
		t.Fatalf("ReadIndexFile failed: %v", err)
	}
	if snap.Chunks[0] != "delta" {
		t.Errorf("Expected overwritten chunk, got %q", snap.Chunks[0])
	}
}

func TestWriteIndexFileCleansUpOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.index")

	snap := testSnapshot()
	snap.Vectors = snap.Vectors[:1]
	if err := WriteIndexFile(path, snap); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Expected ErrCorrupt, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected no leftover files, got %d", len(entries))
	}
}

func TestReadIndexFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadIndexFile(filepath.Join(dir, "missing.index")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// A database without metadata is not an index
	empty := filepath.Join(dir, "empty.index")
	s, err := NewSQLiteStorage(empty)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	_ = s.Close()
	if _, err := ReadIndexFile(empty); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}

	// Files from a future layout are refused
	future := filepath.Join(dir, "future.index")
	s, err = NewSQLiteStorage(future)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	_ = s.SetMeta("format_version", "99")
	_ = s.Close()
	if _, err := ReadIndexMeta(future); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestVectorSerialization(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	got := DeserializeVector(SerializeVector(vec))
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("Index %d: got %v, want %v", i, got[i], vec[i])
		}
	}

	ids := []int32{0, 7, 12345}
	gotIDs := deserializeIDs(serializeIDs(ids))
	for i := range ids {
		if gotIDs[i] != ids[i] {
			t.Errorf("Index %d: got %d, want %d", i, gotIDs[i], ids[i])
		}
	}
}
