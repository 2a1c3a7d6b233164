package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks finrag/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// InsertBatch inserts chunks in a single transaction. Each chunk.ID must
	// be set (UUID) before calling this method.
	InsertBatch(ctx context.Context, chunks []*ChunkRecord) error
	// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// GetByIDs returns the chunks for the given IDs. Missing IDs are
	// silently absent from the result, not an error.
	GetByIDs(ctx context.Context, ids []string) (map[string]*ChunkRecord, error)
	// ListByDocument returns all chunks for a document, ordered by chunk_index.
	ListByDocument(ctx context.Context, documentID string) ([]*ChunkRecord, error)
	// SearchByTerms returns up to limit chunks whose text contains any of the
	// given lowercase terms, best matches first. An empty documentIDs slice
	// searches the whole corpus.
	SearchByTerms(ctx context.Context, terms []string, documentIDs []string, limit int) ([]*ChunkRecord, error)
	// DeleteByDocument deletes all chunks for a given document ID.
	DeleteByDocument(ctx context.Context, documentID string) error
	// CountAll returns the total number of chunk rows.
	CountAll(ctx context.Context) (int, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts chunks in a single transaction so a failed ingest
// never leaves a partial set of rows behind.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, chunk_index, page, text, char_count, has_financial_keywords)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Page,
			chunk.Text, chunk.CharCount, chunk.HasFinancialKeywords,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk insert: %w", err)
	}
	return nil
}

// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var chunk ChunkRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, document_id, chunk_index, page, text, char_count, has_financial_keywords
		 FROM chunks WHERE id = ?`,
		id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Page,
		&chunk.Text, &chunk.CharCount, &chunk.HasFinancialKeywords)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}

	return &chunk, nil
}

// GetByIDs returns the chunks for the given IDs keyed by ID. Missing IDs are
// silently absent from the result, not an error.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*ChunkRecord, error) {
	result := make(map[string]*ChunkRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, page, text, char_count, has_financial_keywords
		 FROM chunks WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var chunk ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Page,
			&chunk.Text, &chunk.CharCount, &chunk.HasFinancialKeywords); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		result[chunk.ID] = &chunk
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return result, nil
}

// ListByDocument returns all chunks for a document, ordered by chunk_index.
// Returns an empty slice if no chunks exist (not an error).
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]*ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, page, text, char_count, has_financial_keywords
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []*ChunkRecord
	for rows.Next() {
		var chunk ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Page,
			&chunk.Text, &chunk.CharCount, &chunk.HasFinancialKeywords); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

// SearchByTerms scans chunk text for the given lowercase terms and returns
// the chunks matching the most terms first. This is the lexical side of
// hybrid retrieval; it finds exact-term matches the embedding space missed.
func (r *ChunkRepo) SearchByTerms(ctx context.Context, terms []string, documentIDs []string, limit int) ([]*ChunkRecord, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	matchExprs := make([]string, len(terms))
	for i := range terms {
		matchExprs[i] = "(instr(lower(text), ?) > 0)"
	}
	matchExpr := strings.Join(matchExprs, " + ")

	var args []any
	for _, term := range terms {
		args = append(args, strings.ToLower(term))
	}

	query := `SELECT id, document_id, chunk_index, page, text, char_count, has_financial_keywords
		 FROM chunks WHERE ` + matchExpr + ` > 0`
	if len(documentIDs) > 0 {
		placeholders := strings.Repeat("?,", len(documentIDs))
		query += " AND document_id IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY " + matchExpr + " DESC, document_id, chunk_index LIMIT ?"
	for _, term := range terms {
		args = append(args, strings.ToLower(term))
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []*ChunkRecord
	for rows.Next() {
		var chunk ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Page,
			&chunk.Text, &chunk.CharCount, &chunk.HasFinancialKeywords); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return chunks, nil
}

// DeleteByDocument deletes all chunks for a given document ID.
// Used when a document is removed or re-ingested.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

// CountAll returns the total number of chunk rows.
func (r *ChunkRepo) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
