package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks finrag/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// Insert inserts a new document. The document.ID must be set (UUID)
	// before calling this method.
	Insert(ctx context.Context, doc *DocumentRecord) error
	// GetByID gets a document by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// GetByFilename gets a document by its original filename.
	// Returns ErrNotFound if not found.
	GetByFilename(ctx context.Context, filename string) (*DocumentRecord, error)
	// List returns all documents ordered by upload time, newest first.
	List(ctx context.Context) ([]*DocumentRecord, error)
	// Delete removes a document row. Chunk rows cascade.
	// Returns ErrNotFound if the document does not exist.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Insert inserts a new document.
func (r *DocumentRepo) Insert(ctx context.Context, doc *DocumentRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, pages, chunk_count, file_size, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		doc.ID, doc.Filename, doc.Pages, doc.ChunkCount, doc.FileSize,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetByID gets a document by its ID. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, filename, pages, chunk_count, file_size, uploaded_at FROM documents WHERE id = ?",
		id,
	)
	return scanDocument(row)
}

// GetByFilename gets a document by its original filename.
// Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByFilename(ctx context.Context, filename string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, filename, pages, chunk_count, file_size, uploaded_at FROM documents WHERE filename = ?",
		filename,
	)
	return scanDocument(row)
}

// List returns all documents ordered by upload time, newest first.
func (r *DocumentRepo) List(ctx context.Context) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, filename, pages, chunk_count, file_size, uploaded_at FROM documents ORDER BY uploaded_at DESC, id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	docs := make([]*DocumentRecord, 0)
	for rows.Next() {
		var doc DocumentRecord
		var uploadedAtStr string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Pages, &doc.ChunkCount, &doc.FileSize, &uploadedAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.UploadedAt, err = parseTimestamp(uploadedAtStr)
		if err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}

// Delete removes a document row. Chunk rows cascade.
// Returns ErrNotFound if the document does not exist.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row *sql.Row) (*DocumentRecord, error) {
	var doc DocumentRecord
	var uploadedAtStr string

	err := row.Scan(&doc.ID, &doc.Filename, &doc.Pages, &doc.ChunkCount, &doc.FileSize, &uploadedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc.UploadedAt, err = parseTimestamp(uploadedAtStr)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// parseTimestamp handles the DATETIME string formats SQLite emits.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return t, nil
}
