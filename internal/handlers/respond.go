// Package handlers contains the HTTP handlers for the document Q&A API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"finrag/internal/contextutil"
	"finrag/internal/extract"
	"finrag/internal/rag"
	"finrag/internal/storage"
	"finrag/internal/vectorstore"
)

// ErrorResponse is the JSON body for all error replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes an error response. Messages are human-readable; internal
// details stay in the logs.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// handleEngineError maps engine and storage errors to HTTP status codes.
func handleEngineError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *rag.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, rag.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rag.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, rag.ErrExternalService):
		logger.ErrorContext(ctx, defaultMsg, "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
	case errors.Is(err, vectorstore.ErrIndexInconsistent):
		logger.ErrorContext(ctx, defaultMsg, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Search index unavailable")
	case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrCorruptFile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(ctx, defaultMsg, "error", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}
