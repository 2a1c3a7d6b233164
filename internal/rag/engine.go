package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"finrag/internal/cache"
	"finrag/internal/contextutil"
	"finrag/internal/conversation"
	"finrag/internal/llm"
	"finrag/internal/storage"
)

// fallbackAnswer is returned when generation fails after retrieval
// succeeded. The caller gets a usable response instead of an error.
const fallbackAnswer = "I was unable to generate a response, please retry."

// historyTurns is how many prior turns accompany a conversational query
// (three exchanges).
const historyTurns = 6

const systemPrompt = `You are a financial analyst assistant. Answer the question using only the provided document excerpts. Cite your sources inline with the excerpt labels, for example [Document 1]. If the excerpts do not contain the answer, say so.`

// Params tunes the engine's retrieval behavior.
type Params struct {
	// TopK is the candidate count for the original query and the final
	// context size.
	TopK int
	// ExpansionK is the smaller candidate count per expanded query.
	ExpansionK int
	// MaxExpansions bounds how many paraphrases are requested.
	MaxExpansions int
}

// Engine orchestrates query answering: cache check, query expansion,
// multi-retrieval with deduplication, grounded generation, and citation
// resolution.
type Engine struct {
	retriever     *Retriever
	expander      *Expander
	generator     Generator
	responseCache *cache.Cache
	conversations *conversation.Store
	docs          storage.DocumentStore
	params        Params
}

// NewEngine creates a query engine.
func NewEngine(
	retriever *Retriever,
	expander *Expander,
	generator Generator,
	responseCache *cache.Cache,
	conversations *conversation.Store,
	docs storage.DocumentStore,
	params Params,
) *Engine {
	if params.TopK <= 0 {
		params.TopK = 5
	}
	if params.ExpansionK <= 0 {
		params.ExpansionK = 3
	}
	return &Engine{
		retriever:     retriever,
		expander:      expander,
		generator:     generator,
		responseCache: responseCache,
		conversations: conversations,
		docs:          docs,
		params:        params,
	}
}

// Query answers a question over the corpus. Cache hits return immediately
// and never reach expansion or generation.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, &ValidationError{Field: "query", Message: "must not be empty"}
	}

	k := req.K
	if k <= 0 {
		k = e.params.TopK
	}
	useHybrid := true
	if req.UseHybrid != nil {
		useHybrid = *req.UseHybrid
	}

	filter, err := e.validateDocumentFilter(ctx, req.DocumentIDs)
	if err != nil {
		return nil, err
	}

	fingerprint := cache.Fingerprint(req.Query, req.DocumentIDs, k, useHybrid)
	if cached, ok := e.responseCache.Get(fingerprint); ok {
		if resp, ok := cached.(*QueryResponse); ok {
			logger.InfoContext(ctx, "cache hit", "fingerprint", fingerprint[:12])
			out := *resp
			out.CacheHit = true
			out.ConversationID = req.ConversationID
			out.ProcessingTime = time.Since(start).Seconds()
			return &out, nil
		}
	}

	candidates, err := e.gatherCandidates(ctx, req.Query, k, filter, useHybrid)
	if err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	resp := e.generate(ctx, req.Query, conversationID, candidates)
	resp.SearchStrategy = strategyName(useHybrid)
	resp.ConversationID = conversationID
	resp.ProcessingTime = time.Since(start).Seconds()

	// A fallback answer reflects a transient failure; caching it would pin
	// the failure for the TTL.
	if resp.Answer != fallbackAnswer {
		cached := *resp
		e.responseCache.Put(fingerprint, &cached)
	}

	e.conversations.Append(conversationID, "user", req.Query)
	e.conversations.Append(conversationID, "assistant", resp.Answer)

	logger.InfoContext(ctx, "query answered",
		"candidates", len(candidates),
		"citations", len(resp.Citations),
		"strategy", resp.SearchStrategy)
	return resp, nil
}

// gatherCandidates expands the query, retrieves for every variant, and
// merges the pools with max-aggregation so a chunk matching several variants
// keeps its best score rather than accumulating.
func (e *Engine) gatherCandidates(ctx context.Context, query string, k int, filter map[string]struct{}, useHybrid bool) ([]Candidate, error) {
	expansions := e.expander.Expand(ctx, query)

	pool, err := e.retriever.Retrieve(ctx, query, k, filter, useHybrid)
	if err != nil {
		return nil, err
	}

	best := make(map[string]Candidate, len(pool))
	for _, cand := range pool {
		best[cand.Chunk.ID] = cand
	}

	for _, variant := range expansions {
		variantPool, err := e.retriever.Retrieve(ctx, variant, e.params.ExpansionK, filter, useHybrid)
		if err != nil {
			// Expansion retrieval failures degrade like expansion itself.
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "expansion retrieval failed", "error", err)
			continue
		}
		for _, cand := range variantPool {
			if existing, ok := best[cand.Chunk.ID]; !ok || cand.Combined > existing.Combined {
				best[cand.Chunk.ID] = cand
			}
		}
	}

	merged := make([]Candidate, 0, len(best))
	for _, cand := range best {
		merged = append(merged, cand)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Combined != merged[j].Combined {
			return merged[i].Combined > merged[j].Combined
		}
		return merged[i].SemanticRank < merged[j].SemanticRank
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// generate asks the generator for a grounded answer over the candidates and
// resolves citations. Generation failure yields the fallback answer.
func (e *Engine) generate(ctx context.Context, query, conversationID string, candidates []Candidate) *QueryResponse {
	logger := contextutil.LoggerFromContext(ctx)

	if len(candidates) == 0 {
		return &QueryResponse{
			Answer:    "I could not find relevant information in the uploaded documents.",
			Citations: []Citation{},
		}
	}

	contextText, blocks := formatContext(candidates)

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}
	messages = append(messages, e.conversations.Recent(conversationID, historyTurns)...)
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: fmt.Sprintf("Document excerpts:\n\n%s\n\nQuestion: %s", contextText, query),
	})

	answer, err := e.generator.Chat(ctx, messages, llm.ChatParams{})
	if err != nil {
		logger.ErrorContext(ctx, "generation failed", "error", err)
		return &QueryResponse{
			Answer:    fallbackAnswer,
			Citations: []Citation{},
		}
	}

	citations := resolveCitations(answer, blocks)
	return &QueryResponse{
		Answer:     answer,
		Citations:  citations,
		Confidence: confidence(citations),
	}
}

// validateDocumentFilter checks that every requested document exists and
// builds the index filter set.
func (e *Engine) validateDocumentFilter(ctx context.Context, documentIDs []string) (map[string]struct{}, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	filter := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		if _, err := e.docs.GetByID(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, WrapError(ErrNotFound, fmt.Sprintf("document %s", id))
			}
			return nil, err
		}
		filter[id] = struct{}{}
	}
	return filter, nil
}

// formatContext renders candidates as labeled excerpt blocks and returns the
// parallel citation blocks. Labels are 1-based so [Document 1] is the top
// candidate.
func formatContext(candidates []Candidate) (string, []contextBlock) {
	var b strings.Builder
	blocks := make([]contextBlock, len(candidates))

	for i, cand := range candidates {
		fmt.Fprintf(&b, "[Document %d] (Source: %s, Page: %d)\n%s\n\n",
			i+1, cand.Document, cand.Chunk.Page, cand.Chunk.Text)
		blocks[i] = contextBlock{
			Document:  cand.Document,
			Page:      cand.Chunk.Page,
			Relevance: cand.Combined,
		}
	}

	return strings.TrimSpace(b.String()), blocks
}

// confidence is a monotonic heuristic over resolved citations, not a
// calibrated probability.
func confidence(citations []Citation) float64 {
	score := float64(len(citations)) * 0.15
	if score > 0.9 {
		score = 0.9
	}
	return score
}

func strategyName(useHybrid bool) string {
	if useHybrid {
		return "hybrid"
	}
	return "semantic"
}
