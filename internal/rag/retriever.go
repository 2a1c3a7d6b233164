package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks finrag/internal/rag Embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"finrag/internal/contextutil"
	"finrag/internal/storage"
	"finrag/internal/vectorstore"
)

// Embedder generates embedding vectors for texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever scores chunks against a query by blending semantic similarity
// with lexical term overlap. The semantic side handles conceptual phrasing
// mismatch; the lexical side guarantees exact-term recall for tickers and
// defined metric names that embeddings can blur.
type Retriever struct {
	index          vectorstore.VectorIndex
	chunks         storage.ChunkStore
	docs           storage.DocumentStore
	embedder       Embedder
	semanticWeight float64
	lexicalWeight  float64
}

// NewRetriever creates a hybrid retriever with the given score weights.
func NewRetriever(
	index vectorstore.VectorIndex,
	chunks storage.ChunkStore,
	docs storage.DocumentStore,
	embedder Embedder,
	semanticWeight, lexicalWeight float64,
) *Retriever {
	return &Retriever{
		index:          index,
		chunks:         chunks,
		docs:           docs,
		embedder:       embedder,
		semanticWeight: semanticWeight,
		lexicalWeight:  lexicalWeight,
	}
}

// Retrieve returns up to k candidates for the query, sorted descending by
// combined score with ties broken by semantic rank. Hybrid retrieval widens
// both pools to 2k and unions them, so a chunk with an exact term match is
// reachable even when the embedding ranks it outside the semantic shortlist.
// With useHybrid false the lexical side is omitted and ordering is pure
// semantic.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter map[string]struct{}, useHybrid bool) ([]Candidate, error) {
	logger := contextutil.LoggerFromContext(ctx)

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, WrapError(ErrExternalService, err.Error())
	}

	fetch := k
	if useHybrid {
		fetch = k * 2
	}

	hits, err := r.index.Search(ctx, vecs[0], fetch, filter)
	if err != nil && !errors.Is(err, vectorstore.ErrInsufficientCandidates) {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	if errors.Is(err, vectorstore.ErrInsufficientCandidates) {
		logger.WarnContext(ctx, "filtered search returned fewer candidates than requested",
			"wanted", fetch, "found", len(hits))
	}

	queryTerms := distinctTerms(query)

	var lexical []*storage.ChunkRecord
	if useHybrid && len(queryTerms) > 0 {
		lexical, err = r.chunks.SearchByTerms(ctx, queryTerms, filterIDs(filter), fetch)
		if err != nil {
			return nil, fmt.Errorf("lexical search failed: %w", err)
		}
	}

	if len(hits) == 0 && len(lexical) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ChunkID
	}
	chunkByID, err := r.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk metadata: %w", err)
	}

	docNames := make(map[string]string)
	seen := make(map[string]struct{}, len(hits))

	candidates := make([]Candidate, 0, len(hits)+len(lexical))
	for rank, hit := range hits {
		chunk, ok := chunkByID[hit.ChunkID]
		if !ok {
			// The index knows a chunk the database does not: the two
			// drifted. Surface it so the caller can trigger a rebuild.
			return nil, fmt.Errorf("%w: chunk %s indexed but not stored", vectorstore.ErrIndexInconsistent, hit.ChunkID)
		}

		docName, err := r.documentName(ctx, docNames, chunk.DocumentID)
		if err != nil {
			return nil, err
		}

		cand := Candidate{
			Chunk:        chunk,
			Document:     docName,
			Semantic:     hit.Similarity,
			SemanticRank: rank,
		}
		if useHybrid {
			cand.Lexical = termOverlap(queryTerms, chunk.Text)
			cand.Combined = r.semanticWeight*cand.Semantic + r.lexicalWeight*cand.Lexical
		} else {
			cand.Combined = cand.Semantic
		}
		seen[chunk.ID] = struct{}{}
		candidates = append(candidates, cand)
	}

	// Term matches the embedding missed join the pool with no semantic
	// contribution, ranked after every semantic hit on ties.
	for i, chunk := range lexical {
		if _, ok := seen[chunk.ID]; ok {
			continue
		}
		lex := termOverlap(queryTerms, chunk.Text)
		if lex == 0 {
			continue
		}

		docName, err := r.documentName(ctx, docNames, chunk.DocumentID)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, Candidate{
			Chunk:        chunk,
			Document:     docName,
			Lexical:      lex,
			Combined:     r.lexicalWeight * lex,
			SemanticRank: len(hits) + i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Combined != candidates[j].Combined {
			return candidates[i].Combined > candidates[j].Combined
		}
		return candidates[i].SemanticRank < candidates[j].SemanticRank
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return candidates, nil
}

// filterIDs flattens the document filter set into a sorted slice for the
// lexical query.
func filterIDs(filter map[string]struct{}) []string {
	if len(filter) == 0 {
		return nil
	}
	ids := make([]string, 0, len(filter))
	for id := range filter {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// documentName resolves a document ID to its filename, memoizing per call.
func (r *Retriever) documentName(ctx context.Context, memo map[string]string, documentID string) (string, error) {
	if name, ok := memo[documentID]; ok {
		return name, nil
	}
	doc, err := r.docs.GetByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve document %s: %w", documentID, err)
	}
	memo[documentID] = doc.Filename
	return doc.Filename, nil
}

// termOverlap is the fraction of query terms appearing in the chunk text.
func termOverlap(queryTerms []string, chunkText string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	chunkTerms := make(map[string]struct{})
	for _, term := range strings.Fields(strings.ToLower(chunkText)) {
		chunkTerms[strings.Trim(term, ".,;:!?()[]\"'")] = struct{}{}
	}

	matched := 0
	for _, term := range queryTerms {
		if _, ok := chunkTerms[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// distinctTerms tokenizes a query into distinct lowercase terms.
func distinctTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, term := range strings.Fields(strings.ToLower(query)) {
		term = strings.Trim(term, ".,;:!?()[]\"'")
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}
