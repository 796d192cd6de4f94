// Package config loads run configuration from environment variables and
// flag overrides.
//
// Loading order:
// 1. Load .env file if present (via godotenv)
// 2. Read environment variables with defaults
// 3. Flag overrides (applied by the caller, see cmd/csvdownloader) win over both
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds the run-wide settings that are not symbol-list or date-window
// specific (those live in orchestrator.Options, built by cmd/csvdownloader).
type Config struct {
	DataDir   string // cache.db lives here
	OutputDir string // CSVs and failure report live here
	LogLevel  string
}

// Load reads configuration from the environment, resolving DataDir and
// OutputDir to absolute paths and creating them if missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:   getEnv("USSTOCK_DATA_DIR", "./data"),
		OutputDir: getEnv("USSTOCK_OUTPUT_DIR", "./output"),
		LogLevel:  getEnv("USSTOCK_LOG_LEVEL", "info"),
	}

	if err := cfg.resolveDirs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveDirs makes DataDir/OutputDir absolute and ensures they exist.
func (c *Config) resolveDirs() error {
	dataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	c.DataDir = dataDir

	outputDir, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory path: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	c.OutputDir = outputDir

	return nil
}

// CachePath returns the path to the SQLite cache file inside DataDir.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
