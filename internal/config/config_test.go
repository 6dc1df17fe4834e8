package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("QDRANT_VECTOR_SIZE", "1024")
	t.Setenv("STT_API_KEY", "test-key")
	t.Setenv("DB_PATH", t.TempDir()+"/meetscribe.db")
	t.Setenv("STORAGE_DIR", t.TempDir()+"/objects")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "9000" {
		t.Errorf("APIPort = %q, want 9000", cfg.APIPort)
	}
	if cfg.QdrantVectorSize != 1024 {
		t.Errorf("QdrantVectorSize = %d, want 1024", cfg.QdrantVectorSize)
	}
	if cfg.StuckGracePeriod != 5*time.Minute {
		t.Errorf("StuckGracePeriod = %v, want 5m", cfg.StuckGracePeriod)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v, want 5m", cfg.SweepInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "missing vector size", unset: "QDRANT_VECTOR_SIZE"},
		{name: "missing STT key", unset: "STT_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QDRANT_VECTOR_SIZE", "1024")
			t.Setenv("STT_API_KEY", "test-key")
			t.Setenv("DB_PATH", t.TempDir()+"/meetscribe.db")
			t.Setenv("STORAGE_DIR", t.TempDir()+"/objects")
			t.Setenv(tt.unset, "")

			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error with %s unset", tt.unset)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-integer vector size", key: "QDRANT_VECTOR_SIZE", value: "big"},
		{name: "negative vector size", key: "QDRANT_VECTOR_SIZE", value: "-1"},
		{name: "bad log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "bad grace period", key: "STUCK_GRACE_PERIOD", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QDRANT_VECTOR_SIZE", "1024")
			t.Setenv("STT_API_KEY", "test-key")
			t.Setenv("DB_PATH", t.TempDir()+"/meetscribe.db")
			t.Setenv("STORAGE_DIR", t.TempDir()+"/objects")
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error with %s=%q", tt.key, tt.value)
			}
		})
	}
}
