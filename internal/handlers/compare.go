package handlers

import (
	"encoding/json"
	"net/http"

	"finrag/internal/rag"
)

// CompareHandler serves multi-document comparison.
type CompareHandler struct {
	engine *rag.Engine
}

// NewCompareHandler creates a new CompareHandler.
func NewCompareHandler(engine *rag.Engine) *CompareHandler {
	return &CompareHandler{engine: engine}
}

// CompareRequest selects the documents and comparison angle.
type CompareRequest struct {
	DocumentIDs    []string `json:"document_ids"`
	ComparisonType string   `json:"comparison_type"`
}

func (h *CompareHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ComparisonType == "" {
		req.ComparisonType = "general"
	}

	resp, err := h.engine.Compare(ctx, req.DocumentIDs, req.ComparisonType)
	if err != nil {
		handleEngineError(ctx, w, err, "Failed to compare documents")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
