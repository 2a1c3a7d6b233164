package storage

import "time"

// DocumentRecord represents an uploaded document in the database.
type DocumentRecord struct {
	ID         string // UUID
	Filename   string // Original filename from upload
	Pages      int    // Page count from extraction
	ChunkCount int    // Number of chunks indexed for this document
	FileSize   int64  // Upload size in bytes
	UploadedAt time.Time
}

// ChunkRecord represents one chunk of document text, indexed for vector search.
type ChunkRecord struct {
	ID                   string // UUID (same as the vector index record ID)
	DocumentID           string // UUID (foreign key to documents.id)
	ChunkIndex           int    // Index within the document (starts at 0)
	Page                 int    // 1-based page the chunk starts on
	Text                 string // Chunk text content
	CharCount            int    // len(Text) at ingest time
	HasFinancialKeywords bool   // Set when the text mentions financial terms
}
