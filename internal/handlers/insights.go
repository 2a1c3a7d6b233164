package handlers

import (
	"encoding/json"
	"net/http"

	"finrag/internal/rag"
)

// InsightsHandler serves insight extraction over selected documents.
type InsightsHandler struct {
	engine *rag.Engine
}

// NewInsightsHandler creates a new InsightsHandler.
func NewInsightsHandler(engine *rag.Engine) *InsightsHandler {
	return &InsightsHandler{engine: engine}
}

// InsightsRequest selects documents and the analysis to run on them.
type InsightsRequest struct {
	DocumentIDs []string `json:"document_ids"`
	InsightType string   `json:"insight_type"`
}

func (h *InsightsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InsightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.engine.ExtractInsights(ctx, req.DocumentIDs, req.InsightType)
	if err != nil {
		handleEngineError(ctx, w, err, "Failed to extract insights")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
