package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

var configEnvVars = []string{
	"LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL",
	"EMBEDDING_BASE_URL", "EMBEDDING_MODEL_NAME", "EMBEDDING_DIM",
	"DB_PATH", "DATA_DIR", "SEED_DOCUMENTS_DIR",
	"VECTOR_BACKEND", "QDRANT_URL", "QDRANT_COLLECTION",
	"API_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"CHUNK_SIZE", "CHUNK_OVERLAP", "SEMANTIC_WEIGHT", "LEXICAL_WEIGHT",
	"TOP_K", "EXPANSION_K", "MAX_EXPANSIONS",
	"CACHE_TTL_SECONDS", "REQUEST_TIMEOUT_SECONDS", "MAX_UPLOAD_MB",
}

func TestLoad(t *testing.T) {
	// Save original env vars
	originalEnv := make(map[string]string)
	for _, key := range configEnvVars {
		originalEnv[key] = os.Getenv(key)
		unsetEnv(key)
	}
	defer func() {
		for key, value := range originalEnv {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	}()

	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(*Config) bool
	}{
		{
			name: "valid config with required fields",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
				setEnv("EMBEDDING_DIM", "384")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.EmbeddingDim == 384 &&
					cfg.VectorBackend == "flat" &&
					cfg.ChunkSize == 800 &&
					cfg.ChunkOverlap == 200 &&
					cfg.TopK == 5 &&
					cfg.CacheTTL == time.Hour
			},
		},
		{
			name: "missing embedding dimension",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
			},
			wantErr: true,
		},
		{
			name: "invalid embedding dimension",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
				setEnv("EMBEDDING_DIM", "not-a-number")
			},
			wantErr: true,
		},
		{
			name: "negative embedding dimension",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
				setEnv("EMBEDDING_DIM", "-1")
			},
			wantErr: true,
		},
		{
			name: "unknown vector backend",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
				setEnv("EMBEDDING_DIM", "384")
				setEnv("VECTOR_BACKEND", "pinecone")
			},
			wantErr: true,
		},
		{
			name: "overlap must be smaller than chunk size",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
				setEnv("EMBEDDING_DIM", "384")
				setEnv("CHUNK_SIZE", "200")
				setEnv("CHUNK_OVERLAP", "200")
			},
			wantErr: true,
		},
		{
			name: "custom retrieval tuning",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
				setEnv("EMBEDDING_DIM", "768")
				setEnv("SEMANTIC_WEIGHT", "0.6")
				setEnv("LEXICAL_WEIGHT", "0.4")
				setEnv("TOP_K", "8")
				setEnv("CACHE_TTL_SECONDS", "60")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.SemanticWeight == 0.6 &&
					cfg.LexicalWeight == 0.4 &&
					cfg.TopK == 8 &&
					cfg.CacheTTL == time.Minute
			},
		},
		{
			name: "log level parsing",
			setupEnv: func(t *testing.T) {
				setEnv("DATA_DIR", t.TempDir())
				setEnv("EMBEDDING_DIM", "384")
				setEnv("LOG_LEVEL", "debug")
				setEnv("LOG_FORMAT", "json")
			},
			wantErr: false,
			checkConfig: func(cfg *Config) bool {
				return cfg.LogLevel == slog.LevelDebug && cfg.LogFormat == "json"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset env between cases
			for _, key := range configEnvVars {
				unsetEnv(key)
			}
			// Keep the DB file inside the temp dir so tests don't touch ./data
			tmp := t.TempDir()
			setEnv("DB_PATH", tmp+"/finrag.db")

			tt.setupEnv(t)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config validation failed: %+v", cfg)
			}
		})
	}
}

func TestConfig_IndexPath(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/finrag"}
	if got := cfg.IndexPath(); got != "/var/lib/finrag/index.gob" {
		t.Errorf("IndexPath() = %q", got)
	}
}
