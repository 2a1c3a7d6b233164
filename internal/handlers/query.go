package handlers

import (
	"encoding/json"
	"net/http"

	"finrag/internal/rag"
)

// QueryHandler serves question answering over the corpus.
type QueryHandler struct {
	engine *rag.Engine
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(engine *rag.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.engine.Query(ctx, req)
	if err != nil {
		handleEngineError(ctx, w, err, "Failed to answer query")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
