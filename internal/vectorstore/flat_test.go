package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testRecords() []Record {
	// One dimension is enough to make distances obvious: query at origin,
	// records at increasing distance.
	return []Record{
		{ChunkID: "c1", DocumentID: "doc-a", Vec: []float32{1}},
		{ChunkID: "c2", DocumentID: "doc-a", Vec: []float32{2}},
		{ChunkID: "c3", DocumentID: "doc-b", Vec: []float32{3}},
		{ChunkID: "c4", DocumentID: "doc-b", Vec: []float32{4}},
		{ChunkID: "c5", DocumentID: "doc-c", Vec: []float32{5}},
	}
}

func TestFlatIndex_SearchOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex(1, "")

	if err := idx.Add(ctx, testRecords()); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	hits, err := idx.Search(ctx, []float32{0}, 3, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("Search() returned %d hits, want 3", len(hits))
	}

	wantOrder := []string{"c1", "c2", "c3"}
	for i, want := range wantOrder {
		if hits[i].ChunkID != want {
			t.Errorf("hit %d = %s, want %s", i, hits[i].ChunkID, want)
		}
	}

	for i := 1; i < len(hits); i++ {
		if hits[i].Similarity > hits[i-1].Similarity {
			t.Errorf("similarities not descending: %f > %f", hits[i].Similarity, hits[i-1].Similarity)
		}
	}

	// Nearest record is at squared distance 1, so similarity is 1/(1+1).
	if hits[0].Similarity != 0.5 {
		t.Errorf("top similarity = %f, want 0.5", hits[0].Similarity)
	}
	for _, h := range hits {
		if h.Similarity <= 0 || h.Similarity > 1 {
			t.Errorf("similarity %f outside (0, 1]", h.Similarity)
		}
	}
}

func TestFlatIndex_SearchFiltered(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex(1, "")
	if err := idx.Add(ctx, testRecords()); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	t.Run("filter restricts to document", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{0}, 2, map[string]struct{}{"doc-b": {}})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(hits) != 2 {
			t.Fatalf("Search() returned %d hits, want 2", len(hits))
		}
		for _, h := range hits {
			if h.DocumentID != "doc-b" {
				t.Errorf("hit %s from document %s, want doc-b", h.ChunkID, h.DocumentID)
			}
		}
	})

	t.Run("shortfall returns hits with sentinel", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{0}, 3, map[string]struct{}{"doc-c": {}})
		if !errors.Is(err, ErrInsufficientCandidates) {
			t.Fatalf("Search() error = %v, want ErrInsufficientCandidates", err)
		}
		if len(hits) != 1 {
			t.Errorf("Search() returned %d hits, want 1", len(hits))
		}
	})

	t.Run("unknown document yields empty with sentinel", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{0}, 2, map[string]struct{}{"nope": {}})
		if !errors.Is(err, ErrInsufficientCandidates) {
			t.Fatalf("Search() error = %v, want ErrInsufficientCandidates", err)
		}
		if len(hits) != 0 {
			t.Errorf("Search() returned %d hits, want 0", len(hits))
		}
	})
}

func TestFlatIndex_Remove(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex(1, "")
	if err := idx.Add(ctx, testRecords()); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := idx.Remove(ctx, "doc-a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	hits, err := idx.Search(ctx, []float32{0}, 5, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, h := range hits {
		if h.DocumentID == "doc-a" {
			t.Errorf("removed document still searchable: %s", h.ChunkID)
		}
	}
	// Survivors kept their ordering after the rebuild.
	if hits[0].ChunkID != "c3" {
		t.Errorf("nearest survivor = %s, want c3", hits[0].ChunkID)
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewFlatIndex(3, "")

	err := idx.Add(ctx, []Record{{ChunkID: "c1", DocumentID: "d1", Vec: []float32{1, 2}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add() error = %v, want ErrDimensionMismatch", err)
	}

	_, err = idx.Search(ctx, []float32{1}, 1, nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestFlatIndex_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.gob")

	idx := NewFlatIndex(1, path)
	if err := idx.Add(ctx, testRecords()); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := idx.Remove(ctx, "doc-c"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	restored, err := LoadFlatIndex(1, path)
	if err != nil {
		t.Fatalf("LoadFlatIndex() error = %v", err)
	}

	count, err := restored.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 4 {
		t.Errorf("Count() after reload = %d, want 4", count)
	}

	hits, err := restored.Search(ctx, []float32{0}, 1, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits[0].ChunkID != "c1" {
		t.Errorf("nearest after reload = %s, want c1", hits[0].ChunkID)
	}
}

func TestLoadFlatIndex_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.gob")
	idx, err := LoadFlatIndex(4, path)
	if err != nil {
		t.Fatalf("LoadFlatIndex() error = %v", err)
	}
	count, err := idx.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}

func TestLoadFlatIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.gob")

	idx := NewFlatIndex(2, path)
	if err := idx.Add(ctx, []Record{{ChunkID: "c1", DocumentID: "d1", Vec: []float32{1, 2}}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	_, err := LoadFlatIndex(3, path)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("LoadFlatIndex() error = %v, want ErrDimensionMismatch", err)
	}
}
