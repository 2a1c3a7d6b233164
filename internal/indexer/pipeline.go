package indexer

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks finrag/internal/indexer Embedder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"finrag/internal/contextutil"
	"finrag/internal/extract"
	"finrag/internal/storage"
	"finrag/internal/vectorstore"
)

// embedBatchSize bounds how many chunk texts go into one embeddings request.
const embedBatchSize = 32

// Embedder generates embedding vectors for texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline orchestrates document ingestion: extraction, chunking, embedding,
// and writes to both SQLite and the vector index.
type Pipeline struct {
	extractor *extract.Registry
	chunker   *Chunker
	docRepo   storage.DocumentStore
	chunkRepo storage.ChunkStore
	embedder  Embedder
	index     vectorstore.VectorIndex
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	extractor *extract.Registry,
	chunker *Chunker,
	docRepo storage.DocumentStore,
	chunkRepo storage.ChunkStore,
	embedder Embedder,
	index vectorstore.VectorIndex,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embedder:  embedder,
		index:     index,
	}
}

// Ingest processes one uploaded document end to end and returns its record.
// Embedding happens before any write so an embedding failure leaves no
// partial document behind.
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (*storage.DocumentRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	pages, err := p.extractor.Extract(filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filename, err)
	}

	chunks, err := p.chunker.ChunkPages(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s: %w", filename, err)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := p.embedBatches(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", filename, err)
	}

	doc := &storage.DocumentRecord{
		ID:         uuid.New().String(),
		Filename:   filename,
		Pages:      len(pages),
		ChunkCount: len(chunks),
		FileSize:   int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}

	records := make([]*storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		chunkID := uuid.New().String()
		records[i] = &storage.ChunkRecord{
			ID:                   chunkID,
			DocumentID:           doc.ID,
			ChunkIndex:           chunk.Index,
			Page:                 chunk.Page,
			Text:                 chunk.Text,
			CharCount:            chunk.CharCount,
			HasFinancialKeywords: chunk.HasFinancialKeywords,
		}
		points[i] = vectorstore.Record{
			ChunkID:    chunkID,
			DocumentID: doc.ID,
			Vec:        vectors[i],
		}
	}

	if err := p.docRepo.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := p.chunkRepo.InsertBatch(ctx, records); err != nil {
		p.rollbackDocument(ctx, doc.ID)
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	if err := p.index.Add(ctx, points); err != nil {
		p.rollbackDocument(ctx, doc.ID)
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}

	logger.InfoContext(ctx, "document ingested",
		"document_id", doc.ID, "filename", filename,
		"pages", doc.Pages, "chunks", doc.ChunkCount)
	return doc, nil
}

// Delete removes a document from the index and the database.
// Returns storage.ErrNotFound if the document does not exist.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := p.docRepo.GetByID(ctx, documentID); err != nil {
		return err
	}

	if err := p.index.Remove(ctx, documentID); err != nil {
		return fmt.Errorf("failed to remove document from index: %w", err)
	}
	if err := p.chunkRepo.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := p.docRepo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	logger.InfoContext(ctx, "document deleted", "document_id", documentID)
	return nil
}

// IngestDir loads every supported file in dir that has not been ingested
// before, matched by filename. Individual file failures are logged and
// skipped so one bad seed document does not block the rest.
func (p *Pipeline) IngestDir(ctx context.Context, dir string) error {
	logger := contextutil.LoggerFromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read seed directory: %w", err)
	}

	supported := make(map[string]struct{})
	for _, ext := range p.extractor.SupportedExtensions() {
		supported[ext] = struct{}{}
	}

	ingested := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := supported[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}

		if _, err := p.docRepo.GetByFilename(ctx, name); err == nil {
			logger.DebugContext(ctx, "skipping already ingested file", "filename", name)
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to check existing document: %w", err)
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.WarnContext(ctx, "failed to read seed file", "filename", name, "error", err)
			continue
		}

		if _, err := p.Ingest(ctx, name, data); err != nil {
			logger.WarnContext(ctx, "failed to ingest seed file", "filename", name, "error", err)
			continue
		}
		ingested++
	}

	logger.InfoContext(ctx, "seed ingest complete", "dir", dir, "ingested", ingested)
	return nil
}

// embedBatches embeds texts in bounded batches and concatenates the results.
func (p *Pipeline) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// rollbackDocument best-effort removes a document whose ingest failed after
// the row was written. Chunk rows cascade.
func (p *Pipeline) rollbackDocument(ctx context.Context, documentID string) {
	logger := contextutil.LoggerFromContext(ctx)
	if err := p.docRepo.Delete(ctx, documentID); err != nil {
		logger.WarnContext(ctx, "failed to roll back partial ingest", "document_id", documentID, "error", err)
	}
}
