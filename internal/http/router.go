package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finrag/internal/cache"
	"finrag/internal/conversation"
	"finrag/internal/handlers"
	"finrag/internal/indexer"
	"finrag/internal/rag"
	"finrag/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Pipeline       *indexer.Pipeline
	Engine         *rag.Engine
	DocRepo        storage.DocumentStore
	Conversations  *conversation.Store
	ResponseCache  *cache.Cache
	MaxUploadBytes int64
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	uploadHandler := handlers.NewUploadHandler(deps.Pipeline, deps.MaxUploadBytes)
	documentsHandler := handlers.NewDocumentsHandler(deps.DocRepo, deps.Pipeline)
	queryHandler := handlers.NewQueryHandler(deps.Engine)
	insightsHandler := handlers.NewInsightsHandler(deps.Engine)
	compareHandler := handlers.NewCompareHandler(deps.Engine)
	conversationsHandler := handlers.NewConversationsHandler(deps.Conversations)
	healthHandler := handlers.NewHealthHandler(deps.Pipeline, deps.ResponseCache, deps.Conversations)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/upload", uploadHandler)
		r.Get("/documents", documentsHandler.List)
		r.Get("/documents/{id}", documentsHandler.Get)
		r.Delete("/documents/{id}", documentsHandler.Delete)
		r.Method(http.MethodPost, "/query", queryHandler)
		r.Method(http.MethodPost, "/insights", insightsHandler)
		r.Method(http.MethodPost, "/compare", compareHandler)
		r.Get("/conversations/{id}", conversationsHandler.History)
		r.Post("/conversations/{id}/clear", conversationsHandler.Clear)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	return r
}
