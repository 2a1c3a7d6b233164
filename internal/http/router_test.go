package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"finrag/internal/cache"
	"finrag/internal/conversation"
	"finrag/internal/extract"
	"finrag/internal/indexer"
	indexermocks "finrag/internal/indexer/mocks"
	"finrag/internal/rag"
	ragmocks "finrag/internal/rag/mocks"
	"finrag/internal/storage"
	storagemocks "finrag/internal/storage/mocks"
	vectormocks "finrag/internal/vectorstore/mocks"
)

func newTestDeps(t *testing.T) (*Deps, *storagemocks.MockDocumentStore) {
	t.Helper()
	ctrl := gomock.NewController(t)

	docRepo := storagemocks.NewMockDocumentStore(ctrl)
	chunkRepo := storagemocks.NewMockChunkStore(ctrl)
	index := vectormocks.NewMockVectorIndex(ctrl)
	embedder := indexermocks.NewMockEmbedder(ctrl)
	ragEmbedder := ragmocks.NewMockEmbedder(ctrl)
	generator := ragmocks.NewMockGenerator(ctrl)

	pipeline := indexer.NewPipeline(
		extract.NewRegistry(),
		indexer.NewChunker(800, 200),
		docRepo,
		chunkRepo,
		embedder,
		index,
	)
	retriever := rag.NewRetriever(index, chunkRepo, docRepo, ragEmbedder, 0.7, 0.3)
	engine := rag.NewEngine(
		retriever,
		rag.NewExpander(generator, 0),
		generator,
		cache.New(time.Hour),
		conversation.NewStore(),
		docRepo,
		rag.Params{TopK: 5, ExpansionK: 3},
	)

	return &Deps{
		Pipeline:       pipeline,
		Engine:         engine,
		DocRepo:        docRepo,
		Conversations:  conversation.NewStore(),
		ResponseCache:  cache.New(time.Hour),
		MaxUploadBytes: 1 << 20,
	}, docRepo
}

func TestNewRouter(t *testing.T) {
	deps, _ := newTestDeps(t)
	if NewRouter(deps) == nil {
		t.Fatal("NewRouter() returned nil")
	}
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{
			name:       "POST /api/query exists",
			method:     http.MethodPost,
			path:       "/api/query",
			wantStatus: http.StatusBadRequest, // route exists, body is empty
		},
		{
			name:       "GET /api/query method not allowed",
			method:     http.MethodGet,
			path:       "/api/query",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "POST /api/insights exists",
			method:     http.MethodPost,
			path:       "/api/insights",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "POST /api/compare exists",
			method:     http.MethodPost,
			path:       "/api/compare",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET unknown conversation returns 404",
			method:     http.MethodGet,
			path:       "/api/conversations/ghost",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown route returns 404",
			method:     http.MethodGet,
			path:       "/api/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	deps, _ := newTestDeps(t)
	router := NewRouter(deps)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_ListDocuments(t *testing.T) {
	deps, docRepo := newTestDeps(t)
	docRepo.EXPECT().List(gomock.Any()).Return([]*storage.DocumentRecord{
		{ID: "doc-1", Filename: "report.txt"},
	}, nil)

	router := NewRouter(deps)
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Router GET /api/documents status = %v, want %v: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	deps, _ := newTestDeps(t)
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
}
