// Package recorder is the client side of the pipeline: it chunks recordings
// into a crash-safe local store, uploads them to the API, and resumes
// interrupted uploads after a restart.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// defaultChunkSize is how much audio goes into one locally persisted chunk.
const defaultChunkSize = 1 << 20

// Config holds the recorder CLI configuration.
type Config struct {
	APIBaseURL string
	UserID     string
	ProjectID  string
	StorePath  string
	ChunkSize  int
}

type fileConfig struct {
	APIBaseURL string `toml:"api_base_url"`
	UserID     string `toml:"user_id"`
	ProjectID  string `toml:"project_id"`
	StorePath  string `toml:"store_path"`
	ChunkSize  int    `toml:"chunk_size"`
}

// LoadConfig reads the TOML config file, falling back to defaults for
// anything unset. Environment variables override file values.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		APIBaseURL: "http://localhost:9000",
		StorePath:  defaultStorePath(),
		ChunkSize:  defaultChunkSize,
	}

	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var fc fileConfig
			if _, err := toml.DecodeFile(path, &fc); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			if fc.APIBaseURL != "" {
				cfg.APIBaseURL = fc.APIBaseURL
			}
			if fc.UserID != "" {
				cfg.UserID = fc.UserID
			}
			if fc.ProjectID != "" {
				cfg.ProjectID = fc.ProjectID
			}
			if fc.StorePath != "" {
				cfg.StorePath = expandTilde(fc.StorePath)
			}
			if fc.ChunkSize > 0 {
				cfg.ChunkSize = fc.ChunkSize
			}
		}
	}

	if v := os.Getenv("MEETSCRIBE_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("MEETSCRIBE_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("MEETSCRIBE_PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	}

	if cfg.UserID == "" {
		return nil, fmt.Errorf("user_id is required (config file or MEETSCRIBE_USER_ID)")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "meetscribe", "config.toml")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./meetscribe-recorder.db"
	}
	return filepath.Join(home, ".local", "share", "meetscribe", "recorder.db")
}

func expandTilde(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
