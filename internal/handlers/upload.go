package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"finrag/internal/contextutil"
	"finrag/internal/extract"
	"finrag/internal/indexer"
)

var supportedExts = extract.NewRegistry().SupportedExtensions()

// UploadHandler handles document uploads.
type UploadHandler struct {
	pipeline *indexer.Pipeline
	maxBytes int64
}

// NewUploadHandler creates a new UploadHandler. maxBytes bounds the accepted
// file size.
func NewUploadHandler(pipeline *indexer.Pipeline, maxBytes int64) *UploadHandler {
	return &UploadHandler{pipeline: pipeline, maxBytes: maxBytes}
}

// UploadResponse is returned after a successful ingest.
type UploadResponse struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	filename := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !supportedExtension(ext) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported file type %s; supported: %s",
				ext, strings.Join(supportedExts, ", ")))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	if int64(len(data)) > h.maxBytes {
		writeError(w, http.StatusBadRequest, "File exceeds the upload size limit")
		return
	}

	doc, err := h.pipeline.Ingest(ctx, filename, data)
	if err != nil {
		if errors.Is(err, indexer.ErrEmptyDocument) {
			writeError(w, http.StatusBadRequest, "Document contains no extractable text")
			return
		}
		handleEngineError(ctx, w, err, "Failed to ingest document")
		return
	}

	logger.InfoContext(ctx, "upload accepted", "document_id", doc.ID, "filename", filename)
	writeJSON(w, http.StatusCreated, UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Pages:      doc.Pages,
		Chunks:     doc.ChunkCount,
		UploadedAt: doc.UploadedAt,
	})
}

func supportedExtension(ext string) bool {
	for _, s := range supportedExts {
		if ext == s {
			return true
		}
	}
	return false
}
