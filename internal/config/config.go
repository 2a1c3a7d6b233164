package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingDim       int
	DBPath             string
	DataDir            string
	SeedDocumentsDir   string
	VectorBackend      string // "flat" or "qdrant"
	QdrantURL          string
	QdrantCollection   string
	APIPort            string
	LogLevel           slog.Level
	LogFormat          string

	// Retrieval tuning. Empirically chosen defaults, exposed as
	// configuration rather than baked in.
	ChunkSize      int
	ChunkOverlap   int
	SemanticWeight float64
	LexicalWeight  float64
	TopK           int
	ExpansionK     int
	MaxExpansions  int
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMModelName:       getEnv("LLM_MODEL", "gpt-4-turbo-preview"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "https://api.openai.com"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
		DBPath:             getEnv("DB_PATH", "./data/finrag.db"),
		DataDir:            getEnv("DATA_DIR", "./data"),
		SeedDocumentsDir:   getEnv("SEED_DOCUMENTS_DIR", ""),
		VectorBackend:      getEnv("VECTOR_BACKEND", "flat"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "findocs"),
		APIPort:            getEnv("API_PORT", "8000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	// EMBEDDING_DIM must match the output vector size of the embeddings model.
	// If the dimension changes, any persisted index must be rebuilt.
	dimStr := getEnv("EMBEDDING_DIM", "")
	if dimStr == "" {
		return nil, fmt.Errorf("EMBEDDING_DIM is required")
	}
	dim, err := strconv.Atoi(dimStr)
	if err != nil {
		return nil, fmt.Errorf("EMBEDDING_DIM must be a valid integer: %w", err)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be greater than 0")
	}
	cfg.EmbeddingDim = dim

	if cfg.VectorBackend != "flat" && cfg.VectorBackend != "qdrant" {
		return nil, fmt.Errorf("VECTOR_BACKEND must be \"flat\" or \"qdrant\", got %q", cfg.VectorBackend)
	}

	cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 800)
	if err != nil {
		return nil, err
	}
	cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", 200)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	cfg.SemanticWeight, err = getEnvFloat("SEMANTIC_WEIGHT", 0.7)
	if err != nil {
		return nil, err
	}
	cfg.LexicalWeight, err = getEnvFloat("LEXICAL_WEIGHT", 0.3)
	if err != nil {
		return nil, err
	}

	cfg.TopK, err = getEnvInt("TOP_K", 5)
	if err != nil {
		return nil, err
	}
	cfg.ExpansionK, err = getEnvInt("EXPANSION_K", 3)
	if err != nil {
		return nil, err
	}
	cfg.MaxExpansions, err = getEnvInt("MAX_EXPANSIONS", 2)
	if err != nil {
		return nil, err
	}

	ttlSecs, err := getEnvInt("CACHE_TTL_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = time.Duration(ttlSecs) * time.Second

	timeoutSecs, err := getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(timeoutSecs) * time.Second

	maxUploadMB, err := getEnvInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUploadMB) * 1024 * 1024

	// Create the data directory if it doesn't exist (DB file and index snapshot live there)
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	return cfg, nil
}

// IndexPath returns the path of the persisted vector index snapshot.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.gob")
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

// getEnvFloat gets a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}
