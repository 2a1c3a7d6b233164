package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"finrag/internal/cache"
	"finrag/internal/conversation"
	"finrag/internal/rag/mocks"
	"finrag/internal/storage"
	storagemocks "finrag/internal/storage/mocks"
	"finrag/internal/vectorstore"
	vsmocks "finrag/internal/vectorstore/mocks"
)

type engineDeps struct {
	index     *vsmocks.MockVectorIndex
	chunks    *storagemocks.MockChunkStore
	docs      *storagemocks.MockDocumentStore
	embedder  *mocks.MockEmbedder
	generator *mocks.MockGenerator
	cache     *cache.Cache
	convs     *conversation.Store
}

func newTestEngine(t *testing.T) (*Engine, engineDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)

	deps := engineDeps{
		index:     vsmocks.NewMockVectorIndex(ctrl),
		chunks:    storagemocks.NewMockChunkStore(ctrl),
		docs:      storagemocks.NewMockDocumentStore(ctrl),
		embedder:  mocks.NewMockEmbedder(ctrl),
		generator: mocks.NewMockGenerator(ctrl),
		cache:     cache.New(time.Hour),
		convs:     conversation.NewStore(),
	}

	retriever := NewRetriever(deps.index, deps.chunks, deps.docs, deps.embedder, 0.7, 0.3)
	expander := NewExpander(deps.generator, 2)
	engine := NewEngine(retriever, expander, deps.generator, deps.cache, deps.convs, deps.docs,
		Params{TopK: 5, ExpansionK: 3, MaxExpansions: 2})
	return engine, deps
}

// stubChunkLookups wires the chunk and document stores to resolve whatever
// the stubbed index returns.
func stubChunkLookups(deps engineDeps, corpus map[string]*storage.ChunkRecord) {
	deps.chunks.EXPECT().
		GetByIDs(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ids []string) (map[string]*storage.ChunkRecord, error) {
			out := make(map[string]*storage.ChunkRecord)
			for _, id := range ids {
				if c, ok := corpus[id]; ok {
					out[id] = c
				}
			}
			return out, nil
		}).
		AnyTimes()
	deps.chunks.EXPECT().
		SearchByTerms(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, nil).
		AnyTimes()
	deps.docs.EXPECT().
		GetByID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string) (*storage.DocumentRecord, error) {
			return &storage.DocumentRecord{ID: id, Filename: id + ".txt"}, nil
		}).
		AnyTimes()
}

func TestEngine_Query_EmptyQuery(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Query(context.Background(), QueryRequest{Query: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Query() error = %v, want ErrInvalidInput", err)
	}
}

func TestEngine_Query_UnknownDocumentFilter(t *testing.T) {
	engine, deps := newTestEngine(t)

	deps.docs.EXPECT().
		GetByID(gomock.Any(), "ghost").
		Return(nil, storage.ErrNotFound)

	_, err := engine.Query(context.Background(), QueryRequest{
		Query:       "What was revenue?",
		DocumentIDs: []string{"ghost"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Query() error = %v, want ErrNotFound", err)
	}
}

func TestEngine_Query_CacheShortCircuit(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	corpus := map[string]*storage.ChunkRecord{
		"c1": {ID: "c1", DocumentID: "doc-a", Page: 2, Text: "Revenue was $52 million."},
	}
	stubChunkLookups(deps, corpus)

	// First call: expansion fails (degrades), one retrieval, one generation.
	// The second identical call must be served from cache without touching
	// the generator, embedder, or index again: all expectations are Times(1).
	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", fmt.Errorf("expansion timeout")).
		Times(1)
	deps.embedder.EXPECT().
		EmbedTexts(gomock.Any(), gomock.Any()).
		Return([][]float32{{0.1}}, nil).
		Times(1)
	deps.index.EXPECT().
		Search(gomock.Any(), gomock.Any(), 10, gomock.Any()).
		Return([]vectorstore.Hit{{ChunkID: "c1", DocumentID: "doc-a", Similarity: 0.8}}, nil).
		Times(1)
	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("Revenue was $52 million [Document 1].", nil).
		Times(1)

	first, err := engine.Query(ctx, QueryRequest{Query: "What was revenue?"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if first.CacheHit {
		t.Error("first query reported a cache hit")
	}
	if len(first.Citations) != 1 || first.Citations[0].Page != 2 {
		t.Errorf("citations = %+v, want one on page 2", first.Citations)
	}
	if first.Confidence != 0.15 {
		t.Errorf("confidence = %f, want 0.15", first.Confidence)
	}
	if first.SearchStrategy != "hybrid" {
		t.Errorf("strategy = %s, want hybrid", first.SearchStrategy)
	}
	if first.ConversationID == "" {
		t.Error("no conversation ID assigned")
	}

	// Whitespace and case variations hit the same fingerprint.
	second, err := engine.Query(ctx, QueryRequest{Query: "  what WAS revenue? "})
	if err != nil {
		t.Fatalf("Query() cached error = %v", err)
	}
	if !second.CacheHit {
		t.Error("second query missed the cache")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer = %q, want %q", second.Answer, first.Answer)
	}
}

func TestEngine_Query_ExpansionDedupeKeepsMaxScore(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	corpus := map[string]*storage.ChunkRecord{
		"c1": {ID: "c1", DocumentID: "doc-a", Page: 1, Text: "zzz qqq"},
	}
	stubChunkLookups(deps, corpus)

	// Expansion produces one variant; the same chunk scores higher under
	// the variant and must keep that score after max-aggregation.
	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(`["rephrased question"]`, nil).
		Times(1)
	deps.embedder.EXPECT().
		EmbedTexts(gomock.Any(), gomock.Any()).
		Return([][]float32{{0.1}}, nil).
		Times(2)
	deps.index.EXPECT().
		Search(gomock.Any(), gomock.Any(), 10, gomock.Any()).
		Return([]vectorstore.Hit{{ChunkID: "c1", DocumentID: "doc-a", Similarity: 0.5}}, nil).
		Times(1)
	deps.index.EXPECT().
		Search(gomock.Any(), gomock.Any(), 6, gomock.Any()).
		Return([]vectorstore.Hit{{ChunkID: "c1", DocumentID: "doc-a", Similarity: 0.9}}, nil).
		Times(1)
	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("Answer [Document 1].", nil).
		Times(1)

	resp, err := engine.Query(ctx, QueryRequest{Query: "original question"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(resp.Citations) != 1 {
		t.Fatalf("citations = %d, want 1", len(resp.Citations))
	}
	// No lexical overlap, so combined = 0.7 * semantic; max-aggregation
	// keeps the variant's 0.9 over the original's 0.5.
	want := 0.7 * 0.9
	if diff := resp.Citations[0].Relevance - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("relevance = %f, want %f (max-aggregated)", resp.Citations[0].Relevance, want)
	}
}

func TestEngine_Query_GenerationFallback(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	corpus := map[string]*storage.ChunkRecord{
		"c1": {ID: "c1", DocumentID: "doc-a", Page: 1, Text: "some text"},
	}
	stubChunkLookups(deps, corpus)

	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", fmt.Errorf("expansion down")).
		Times(1)
	deps.embedder.EXPECT().
		EmbedTexts(gomock.Any(), gomock.Any()).
		Return([][]float32{{0.1}}, nil).
		Times(1)
	deps.index.EXPECT().
		Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]vectorstore.Hit{{ChunkID: "c1", DocumentID: "doc-a", Similarity: 0.8}}, nil).
		Times(1)
	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", fmt.Errorf("generation down")).
		Times(1)

	resp, err := engine.Query(ctx, QueryRequest{Query: "What was revenue?"})
	if err != nil {
		t.Fatalf("Query() error = %v, want fallback answer instead", err)
	}
	if !strings.Contains(resp.Answer, "unable to generate") {
		t.Errorf("answer = %q, want fallback", resp.Answer)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("fallback carried %d citations, want 0", len(resp.Citations))
	}
	if deps.cache.Size() != 0 {
		t.Error("fallback answer was cached")
	}
}

func TestEngine_Query_AppendsConversation(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	corpus := map[string]*storage.ChunkRecord{
		"c1": {ID: "c1", DocumentID: "doc-a", Page: 1, Text: "Revenue data."},
	}
	stubChunkLookups(deps, corpus)

	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", fmt.Errorf("no expansion")).
		Times(1)
	deps.embedder.EXPECT().
		EmbedTexts(gomock.Any(), gomock.Any()).
		Return([][]float32{{0.1}}, nil).
		Times(1)
	deps.index.EXPECT().
		Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]vectorstore.Hit{{ChunkID: "c1", DocumentID: "doc-a", Similarity: 0.8}}, nil).
		Times(1)
	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("The answer [Document 1].", nil).
		Times(1)

	resp, err := engine.Query(ctx, QueryRequest{Query: "What was revenue?", ConversationID: "conv-7"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.ConversationID != "conv-7" {
		t.Errorf("conversation ID = %s, want conv-7", resp.ConversationID)
	}

	history := deps.convs.History("conv-7")
	if len(history) != 2 {
		t.Fatalf("conversation has %d turns, want 2", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("turn roles = %s, %s", history[0].Role, history[1].Role)
	}
}

func TestEngine_Compare_DocumentBounds(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for _, ids := range [][]string{
		{"only-one"},
		{"a", "b", "c", "d", "e", "f"},
	} {
		_, err := engine.Compare(ctx, ids, "general")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Compare(%d docs) error = %v, want ErrInvalidInput", len(ids), err)
		}
	}
}

func TestEngine_Compare_InvalidType(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Compare(context.Background(), []string{"a", "b"}, "astrology")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Compare() error = %v, want ErrInvalidInput", err)
	}
}

func TestEngine_Compare_BalancesStarvedDocument(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	corpus := map[string]*storage.ChunkRecord{
		"a1": {ID: "a1", DocumentID: "doc-a", Page: 1, Text: "alpha one"},
		"a2": {ID: "a2", DocumentID: "doc-a", Page: 2, Text: "alpha two"},
		"b1": {ID: "b1", DocumentID: "doc-b", Page: 1, Text: "beta one"},
		"b2": {ID: "b2", DocumentID: "doc-b", Page: 3, Text: "beta two"},
	}
	stubChunkLookups(deps, corpus)

	deps.embedder.EXPECT().
		EmbedTexts(gomock.Any(), gomock.Any()).
		Return([][]float32{{0.1}}, nil).
		AnyTimes()
	// The joint retrieval returns only doc-a chunks; the backfill query
	// filtered to doc-b supplies its chunks.
	deps.index.EXPECT().
		Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ []float32, k int, filter map[string]struct{}) ([]vectorstore.Hit, error) {
			if _, onlyB := filter["doc-b"]; onlyB && len(filter) == 1 {
				return []vectorstore.Hit{
					{ChunkID: "b1", DocumentID: "doc-b", Similarity: 0.4},
					{ChunkID: "b2", DocumentID: "doc-b", Similarity: 0.3},
				}, nil
			}
			return []vectorstore.Hit{
				{ChunkID: "a1", DocumentID: "doc-a", Similarity: 0.9},
				{ChunkID: "a2", DocumentID: "doc-a", Similarity: 0.8},
			}, nil
		}).
		AnyTimes()
	deps.generator.EXPECT().
		Chat(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(`{"comparison": "Both cover earnings.", "key_differences": ["scope"], "similarities": ["period"]}`, nil).
		Times(1)

	resp, err := engine.Compare(ctx, []string{"doc-a", "doc-b"}, "financial")
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if resp.Comparison != "Both cover earnings." {
		t.Errorf("comparison = %q", resp.Comparison)
	}
	if len(resp.KeyDifferences) != 1 || len(resp.Similarities) != 1 {
		t.Errorf("structured fields = %v / %v", resp.KeyDifferences, resp.Similarities)
	}

	foundB := false
	for _, name := range resp.Documents {
		if name == "doc-b.txt" {
			foundB = true
		}
	}
	if !foundB {
		t.Error("starved document absent from comparison context")
	}
}

func TestEngine_ExtractInsights(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	t.Run("invalid type", func(t *testing.T) {
		_, err := engine.ExtractInsights(ctx, []string{"doc-a"}, "horoscope")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ExtractInsights() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("no documents", func(t *testing.T) {
		_, err := engine.ExtractInsights(ctx, nil, "summary")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ExtractInsights() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("summary over one document", func(t *testing.T) {
		corpus := map[string]*storage.ChunkRecord{
			"c1": {ID: "c1", DocumentID: "doc-a", Page: 1, Text: "Overview of the year."},
		}
		stubChunkLookups(deps, corpus)

		deps.embedder.EXPECT().
			EmbedTexts(gomock.Any(), gomock.Any()).
			Return([][]float32{{0.1}}, nil)
		deps.index.EXPECT().
			Search(gomock.Any(), gomock.Any(), 2*insightsK, gomock.Any()).
			Return([]vectorstore.Hit{{ChunkID: "c1", DocumentID: "doc-a", Similarity: 0.7}}, nil)
		deps.generator.EXPECT().
			Chat(gomock.Any(), gomock.Any(), gomock.Any()).
			Return("The document summarizes a strong year.", nil)

		resp, err := engine.ExtractInsights(ctx, []string{"doc-a"}, "summary")
		if err != nil {
			t.Fatalf("ExtractInsights() error = %v", err)
		}
		if resp.InsightType != "summary" {
			t.Errorf("insight type = %s", resp.InsightType)
		}
		if resp.Content == "" {
			t.Error("empty insights content")
		}
		if len(resp.DocumentsAnalyzed) != 1 || resp.DocumentsAnalyzed[0] != "doc-a.txt" {
			t.Errorf("documents analyzed = %v", resp.DocumentsAnalyzed)
		}
	})
}
