package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_index.go -package=mocks finrag/internal/vectorstore VectorIndex

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientCandidates is returned (non-fatally, alongside results)
	// when a filtered search cannot produce k survivors. Callers should log
	// it and proceed with whatever was found.
	ErrInsufficientCandidates = errors.New("insufficient candidates after filtering")
	// ErrDimensionMismatch is returned when a vector's dimension does not
	// match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexInconsistent is returned when the vector array and metadata
	// table disagree. It indicates a defect, not a recoverable condition.
	ErrIndexInconsistent = errors.New("index and metadata out of sync")
)

// Record is one chunk's embedding plus the references needed to resolve it
// back to stored metadata.
type Record struct {
	ChunkID    string
	DocumentID string
	Vec        []float32
}

// Hit is a search result: a chunk reference with its normalized similarity.
// Similarity is 1/(1+distance), monotonic decreasing in distance and bounded
// in (0, 1].
type Hit struct {
	ChunkID    string
	DocumentID string
	Similarity float64
}

// VectorIndex is the embedding index contract. Implementations keep the
// vector array and chunk references in lock-step: any add or remove updates
// both atomically from the caller's perspective.
type VectorIndex interface {
	// Add appends records to the index.
	Add(ctx context.Context, recs []Record) error

	// Remove deletes every record belonging to the given document.
	Remove(ctx context.Context, documentID string) error

	// Search returns up to k hits ordered by descending similarity.
	// When filter is non-empty, only hits from the given document IDs
	// survive; if fewer than k remain the hits are returned together with
	// ErrInsufficientCandidates.
	Search(ctx context.Context, query []float32, k int, filter map[string]struct{}) ([]Hit, error)

	// Count returns the number of indexed records.
	Count(ctx context.Context) (int, error)
}
