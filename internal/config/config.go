package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the API service.
type Config struct {
	APIPort       string
	LogLevel      slog.Level
	LogFormat     string
	DBPath        string
	StorageDir    string
	PublicBaseURL string

	STTBaseURL string
	STTAPIKey  string

	LLMBaseURL   string
	LLMAPIKey    string
	LLMModelName string

	EmbeddingBaseURL   string
	EmbeddingModelName string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	// SweepInterval controls the in-process periodic trigger. Zero disables it
	// (an external scheduler can drive the sweep endpoints instead).
	SweepInterval time.Duration

	// StuckGracePeriod is how old a non-terminal session must be before the
	// recovery sweep picks it up.
	StuckGracePeriod time.Duration
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded
// automatically; environment variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Walk up to find a .env next to go.mod
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		DBPath:             getEnv("DB_PATH", "./data/meetscribe.db"),
		StorageDir:         getEnv("STORAGE_DIR", "./data/objects"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:9000"),
		STTBaseURL:         getEnv("STT_BASE_URL", "https://api.assemblyai.com"),
		STTAPIKey:          getEnv("STT_API_KEY", ""),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "transcripts"),
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	if cfg.STTAPIKey == "" {
		return nil, fmt.Errorf("STT_API_KEY is required")
	}

	sweepInterval, err := parseDuration("SWEEP_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	if sweepInterval < 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}
	cfg.SweepInterval = sweepInterval

	grace, err := parseDuration("STUCK_GRACE_PERIOD", "5m")
	if err != nil {
		return nil, err
	}
	if grace <= 0 {
		return nil, fmt.Errorf("STUCK_GRACE_PERIOD must be greater than 0")
	}
	cfg.StuckGracePeriod = grace

	// Create data directories up front so first writes don't race on them
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return cfg, nil
}

// parseLogLevel converts a level name to a slog.Level.
func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
