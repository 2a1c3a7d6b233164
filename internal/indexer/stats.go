package indexer

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// CorpusStats summarizes the indexed corpus for the stats endpoint.
type CorpusStats struct {
	// Documents is the number of documents in the database.
	Documents int `json:"documents"`
	// Chunks is the number of chunk rows in the database.
	Chunks int `json:"chunks"`
	// IndexedVectors is the number of vectors in the index. It should equal
	// Chunks; a mismatch means the index and database drifted.
	IndexedVectors int `json:"indexed_vectors"`
	// FinancialChunks is the number of chunks flagged as financial.
	FinancialChunks int `json:"financial_chunks"`
	// ChunkCharStats describes the chunk length distribution.
	ChunkCharStats ChunkCharStats `json:"chunk_char_stats"`
}

// ChunkCharStats contains statistics about chunk lengths in characters.
type ChunkCharStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// GetCorpusStats computes corpus statistics from the database and the index.
func (p *Pipeline) GetCorpusStats(ctx context.Context) (*CorpusStats, error) {
	docs, err := p.docRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	chunkCount, err := p.chunkRepo.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	indexed, err := p.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count indexed vectors: %w", err)
	}

	stats := &CorpusStats{
		Documents:      len(docs),
		Chunks:         chunkCount,
		IndexedVectors: indexed,
	}

	var charCounts []int
	for _, doc := range docs {
		chunks, err := p.chunkRepo.ListByDocument(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list chunks: %w", err)
		}
		for _, chunk := range chunks {
			charCounts = append(charCounts, chunk.CharCount)
			if chunk.HasFinancialKeywords {
				stats.FinancialChunks++
			}
		}
	}
	stats.ChunkCharStats = computeCharStats(charCounts)

	return stats, nil
}

// computeCharStats computes min, max, mean, and p95 from chunk lengths.
func computeCharStats(counts []int) ChunkCharStats {
	if len(counts) == 0 {
		return ChunkCharStats{}
	}

	sorted := make([]int, len(counts))
	copy(sorted, counts)
	sort.Ints(sorted)

	sum := 0
	for _, c := range counts {
		sum += c
	}
	mean := float64(sum) / float64(len(counts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkCharStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
