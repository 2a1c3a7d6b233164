package vectorstore

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"

	"finrag/internal/contextutil"
)

// filterOverfetch is how many times k a filtered search widens its candidate
// window before giving up on finding k survivors.
const filterOverfetch = 4

// chunkRef is the metadata entry parallel to one vector.
type chunkRef struct {
	ChunkID    string
	DocumentID string
}

// FlatIndex is an in-process exact-search index over L2 distance. Vectors and
// chunk references live in two parallel slices guarded by a read-write lock:
// searches take the read lock, add/remove take the write lock, so readers
// never observe a half-rebuilt index.
//
// Remove rebuilds the arrays from the surviving records. That is O(N), which
// is fine at the corpus scale this serves (thousands of chunks); a larger
// corpus would want tombstone-and-compact instead.
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	path    string
	vectors [][]float32
	refs    []chunkRef
}

// flatSnapshot is the gob-serialized on-disk form of the index.
type flatSnapshot struct {
	Dim     int
	Vectors [][]float32
	Refs    []chunkRef
}

// NewFlatIndex creates a flat index for vectors of the given dimension.
// path is where snapshots are persisted; empty disables persistence (tests).
func NewFlatIndex(dim int, path string) *FlatIndex {
	return &FlatIndex{
		dim:  dim,
		path: path,
	}
}

// LoadFlatIndex creates a flat index and restores a previously persisted
// snapshot from path if one exists.
func LoadFlatIndex(dim int, path string) (*FlatIndex, error) {
	idx := NewFlatIndex(dim, path)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index snapshot: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var snap flatSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode index snapshot: %w", err)
	}
	if snap.Dim != dim {
		return nil, fmt.Errorf("%w: snapshot dimension %d, configured %d", ErrDimensionMismatch, snap.Dim, dim)
	}
	if len(snap.Vectors) != len(snap.Refs) {
		return nil, fmt.Errorf("%w: %d vectors, %d refs in snapshot", ErrIndexInconsistent, len(snap.Vectors), len(snap.Refs))
	}

	idx.vectors = snap.Vectors
	idx.refs = snap.Refs
	return idx, nil
}

// Add appends records to the index and persists a snapshot.
func (x *FlatIndex) Add(ctx context.Context, recs []Record) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(recs) == 0 {
		return nil
	}

	// Validate before mutating so a bad batch never leaves a partial add.
	for i, rec := range recs {
		if len(rec.Vec) != x.dim {
			return fmt.Errorf("%w: record %d has dimension %d, index expects %d", ErrDimensionMismatch, i, len(rec.Vec), x.dim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, rec := range recs {
		x.vectors = append(x.vectors, rec.Vec)
		x.refs = append(x.refs, chunkRef{ChunkID: rec.ChunkID, DocumentID: rec.DocumentID})
	}

	if err := x.saveLocked(); err != nil {
		return err
	}

	logger.InfoContext(ctx, "added vectors", "count", len(recs), "total", len(x.vectors))
	return nil
}

// Remove deletes every record belonging to the given document by rebuilding
// the parallel arrays from the survivors, then persists a snapshot.
func (x *FlatIndex) Remove(ctx context.Context, documentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	x.mu.Lock()
	defer x.mu.Unlock()

	survivingVecs := make([][]float32, 0, len(x.vectors))
	survivingRefs := make([]chunkRef, 0, len(x.refs))
	for i, ref := range x.refs {
		if ref.DocumentID == documentID {
			continue
		}
		survivingVecs = append(survivingVecs, x.vectors[i])
		survivingRefs = append(survivingRefs, ref)
	}

	removed := len(x.refs) - len(survivingRefs)
	x.vectors = survivingVecs
	x.refs = survivingRefs

	if err := x.saveLocked(); err != nil {
		return err
	}

	logger.InfoContext(ctx, "removed vectors", "document_id", documentID, "removed", removed, "remaining", len(x.refs))
	return nil
}

// Search scans all vectors and returns up to k hits by descending
// similarity. With a filter, the candidate window is widened to
// filterOverfetch*k before filtering; a post-filter shortfall returns the
// survivors together with ErrInsufficientCandidates.
func (x *FlatIndex) Search(ctx context.Context, query []float32, k int, filter map[string]struct{}) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d", ErrDimensionMismatch, len(query), x.dim)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.vectors) != len(x.refs) {
		return nil, fmt.Errorf("%w: %d vectors, %d refs", ErrIndexInconsistent, len(x.vectors), len(x.refs))
	}

	type scored struct {
		idx        int
		similarity float64
	}
	all := make([]scored, len(x.vectors))
	for i, vec := range x.vectors {
		d := l2Distance(query, vec)
		all[i] = scored{idx: i, similarity: 1.0 / (1.0 + d)}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].similarity > all[j].similarity
	})

	window := k
	if len(filter) > 0 {
		window = k * filterOverfetch
	}
	if window > len(all) {
		window = len(all)
	}

	hits := make([]Hit, 0, k)
	for _, s := range all[:window] {
		ref := x.refs[s.idx]
		if len(filter) > 0 {
			if _, ok := filter[ref.DocumentID]; !ok {
				continue
			}
		}
		hits = append(hits, Hit{
			ChunkID:    ref.ChunkID,
			DocumentID: ref.DocumentID,
			Similarity: s.similarity,
		})
		if len(hits) == k {
			break
		}
	}

	if len(filter) > 0 && len(hits) < k && len(hits) < x.countFilteredLocked(filter) {
		// The window was too narrow; scan the remainder rather than report
		// a false shortfall. The exact scan already computed everything.
		hits = hits[:0]
		for _, s := range all {
			ref := x.refs[s.idx]
			if _, ok := filter[ref.DocumentID]; !ok {
				continue
			}
			hits = append(hits, Hit{ChunkID: ref.ChunkID, DocumentID: ref.DocumentID, Similarity: s.similarity})
			if len(hits) == k {
				break
			}
		}
	}

	if len(filter) > 0 && len(hits) < k {
		return hits, fmt.Errorf("%w: wanted %d, found %d", ErrInsufficientCandidates, k, len(hits))
	}
	return hits, nil
}

// Count returns the number of indexed records.
func (x *FlatIndex) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.refs), nil
}

// countFilteredLocked counts records matching the filter. Caller holds a lock.
func (x *FlatIndex) countFilteredLocked(filter map[string]struct{}) int {
	n := 0
	for _, ref := range x.refs {
		if _, ok := filter[ref.DocumentID]; ok {
			n++
		}
	}
	return n
}

// saveLocked persists a snapshot. Caller holds the write lock.
// The snapshot is written to a temp file and renamed so a crash mid-write
// never corrupts the previous snapshot.
func (x *FlatIndex) saveLocked() error {
	if x.path == "" {
		return nil
	}

	tmp := x.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index snapshot: %w", err)
	}

	snap := flatSnapshot{Dim: x.dim, Vectors: x.vectors, Refs: x.refs}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode index snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close index snapshot: %w", err)
	}

	if err := os.Rename(tmp, x.path); err != nil {
		return fmt.Errorf("failed to replace index snapshot: %w", err)
	}
	return nil
}

// l2Distance computes squared Euclidean distance, the same quantity a flat
// L2 index reports. Squared is fine: the similarity mapping only needs
// monotonicity.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
