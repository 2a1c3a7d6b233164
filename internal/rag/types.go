package rag

import "finrag/internal/storage"

// QueryRequest is a question against the corpus.
type QueryRequest struct {
	Query          string   `json:"query"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	K              int      `json:"k,omitempty"`
	UseHybrid      *bool    `json:"use_hybrid,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

// Citation points an answer fragment back to a document page.
type Citation struct {
	Document  string  `json:"document"`
	Page      int     `json:"page"`
	Relevance float64 `json:"relevance"`
}

// QueryResponse is a grounded answer with its provenance.
type QueryResponse struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Confidence     float64    `json:"confidence"`
	ConversationID string     `json:"conversation_id,omitempty"`
	CacheHit       bool       `json:"cache_hit"`
	SearchStrategy string     `json:"search_strategy"`
	ProcessingTime float64    `json:"processing_time"`
}

// Candidate is one retrieved chunk with its scores. SemanticRank preserves
// the index ordering for stable tie-breaks after blending.
type Candidate struct {
	Chunk        *storage.ChunkRecord
	Document     string // source document filename
	Semantic     float64
	Lexical      float64
	Combined     float64
	SemanticRank int
}

// InsightsResponse is the result of an insight extraction over documents.
type InsightsResponse struct {
	InsightType       string   `json:"insight_type"`
	DocumentsAnalyzed []string `json:"documents_analyzed"`
	Content           string   `json:"content"`
	ProcessingTime    float64  `json:"processing_time"`
}

// CompareResponse is the result of a multi-document comparison.
type CompareResponse struct {
	ComparisonType string   `json:"comparison_type"`
	Documents      []string `json:"documents"`
	Comparison     string   `json:"comparison"`
	KeyDifferences []string `json:"key_differences,omitempty"`
	Similarities   []string `json:"similarities,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
}
