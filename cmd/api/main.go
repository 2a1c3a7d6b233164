package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"finrag/internal/cache"
	"finrag/internal/config"
	"finrag/internal/conversation"
	"finrag/internal/extract"
	"finrag/internal/http"
	"finrag/internal/indexer"
	"finrag/internal/llm"
	"finrag/internal/rag"
	"finrag/internal/storage"
	"finrag/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	docRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)

	ctx := context.Background()

	// Initialize the vector index
	var index vectorstore.VectorIndex
	switch cfg.VectorBackend {
	case "qdrant":
		qdrantIndex, err := vectorstore.NewQdrantIndex(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDim)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			log.Fatalf("Failed to ensure Qdrant collection: %v", err)
		}
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.EmbeddingDim)
		index = qdrantIndex
	default:
		flatIndex, err := vectorstore.LoadFlatIndex(cfg.EmbeddingDim, cfg.IndexPath())
		if err != nil {
			log.Fatalf("Failed to load vector index: %v", err)
		}
		count, _ := flatIndex.Count(ctx)
		slog.Info("Flat vector index ready", "path", cfg.IndexPath(), "vectors", count)
		index = flatIndex
	}

	embedder := llm.NewEmbeddingsClient(
		cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName,
		cfg.EmbeddingDim, cfg.RequestTimeout,
	)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, cfg.RequestTimeout)

	pipeline := indexer.NewPipeline(
		extract.NewRegistry(),
		indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		docRepo,
		chunkRepo,
		embedder,
		index,
	)

	responseCache := cache.New(cfg.CacheTTL)
	responseCache.StartSweeper(ctx)
	conversations := conversation.NewStore()

	retriever := rag.NewRetriever(index, chunkRepo, docRepo, embedder, cfg.SemanticWeight, cfg.LexicalWeight)
	expander := rag.NewExpander(llmClient, cfg.MaxExpansions)
	engine := rag.NewEngine(
		retriever,
		expander,
		llmClient,
		responseCache,
		conversations,
		docRepo,
		rag.Params{
			TopK:          cfg.TopK,
			ExpansionK:    cfg.ExpansionK,
			MaxExpansions: cfg.MaxExpansions,
		},
	)
	slog.Info("RAG engine initialized",
		"semantic_weight", cfg.SemanticWeight, "lexical_weight", cfg.LexicalWeight,
		"top_k", cfg.TopK)

	deps := &http.Deps{
		Pipeline:       pipeline,
		Engine:         engine,
		DocRepo:        docRepo,
		Conversations:  conversations,
		ResponseCache:  responseCache,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	router := http.NewRouter(deps)

	// Seed documents after the router is ready so startup is not blocked on
	// embedding a large corpus.
	if cfg.SeedDocumentsDir != "" {
		go func() {
			seedCtx := context.Background()
			slog.Info("Starting background seed ingest", "dir", cfg.SeedDocumentsDir)
			if err := pipeline.IngestDir(seedCtx, cfg.SeedDocumentsDir); err != nil {
				slog.Error("Seed ingest completed with errors", "error", err)
			}
		}()
	}

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
