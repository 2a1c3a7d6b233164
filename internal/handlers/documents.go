package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"finrag/internal/contextutil"
	"finrag/internal/indexer"
	"finrag/internal/storage"
)

// DocumentsHandler serves document listing, lookup, and deletion.
type DocumentsHandler struct {
	docRepo  storage.DocumentStore
	pipeline *indexer.Pipeline
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(docRepo storage.DocumentStore, pipeline *indexer.Pipeline) *DocumentsHandler {
	return &DocumentsHandler{docRepo: docRepo, pipeline: pipeline}
}

// DocumentResponse is the JSON shape for one document.
type DocumentResponse struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ListResponse wraps the document collection.
type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int                `json:"total"`
}

// List returns all documents, newest first.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docs, err := h.docRepo.List(ctx)
	if err != nil {
		handleEngineError(ctx, w, err, "Failed to list documents")
		return
	}

	out := make([]DocumentResponse, len(docs))
	for i, doc := range docs {
		out[i] = toDocumentResponse(doc)
	}
	writeJSON(w, http.StatusOK, ListResponse{Documents: out, Total: len(out)})
}

// Get returns a single document by ID.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	doc, err := h.docRepo.GetByID(ctx, id)
	if err != nil {
		handleEngineError(ctx, w, err, "Failed to load document")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// Delete removes a document and its indexed chunks.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	if err := h.pipeline.Delete(ctx, id); err != nil {
		handleEngineError(ctx, w, err, "Failed to delete document")
		return
	}

	logger.InfoContext(ctx, "document deleted via API", "document_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": id})
}

func toDocumentResponse(doc *storage.DocumentRecord) DocumentResponse {
	return DocumentResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Pages:      doc.Pages,
		Chunks:     doc.ChunkCount,
		FileSize:   doc.FileSize,
		UploadedAt: doc.UploadedAt,
	}
}
