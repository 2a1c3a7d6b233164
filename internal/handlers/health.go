package handlers

import (
	"net/http"

	"finrag/internal/cache"
	"finrag/internal/contextutil"
	"finrag/internal/conversation"
	"finrag/internal/indexer"
)

// HealthHandler reports service status and corpus statistics.
type HealthHandler struct {
	pipeline      *indexer.Pipeline
	cache         *cache.Cache
	conversations *conversation.Store
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pipeline *indexer.Pipeline, responseCache *cache.Cache, conversations *conversation.Store) *HealthHandler {
	return &HealthHandler{pipeline: pipeline, cache: responseCache, conversations: conversations}
}

// HealthResponse is the JSON shape of the health endpoint.
type HealthResponse struct {
	Status              string               `json:"status"`
	Corpus              *indexer.CorpusStats `json:"corpus,omitempty"`
	CachedItems         int                  `json:"cached_items"`
	ActiveConversations int                  `json:"active_conversations"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	stats, err := h.pipeline.GetCorpusStats(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "health check failed to gather corpus stats", "error", err)
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:              "degraded",
			CachedItems:         h.cache.Size(),
			ActiveConversations: len(h.conversations.IDs()),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:              "healthy",
		Corpus:              stats,
		CachedItems:         h.cache.Size(),
		ActiveConversations: len(h.conversations.IDs()),
	})
}
