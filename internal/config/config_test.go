package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesEnvOverridesAndCreatesDirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("USSTOCK_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("USSTOCK_OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("USSTOCK_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.OutputDir)
	assert.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestCachePathJoinsDataDir(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/somewhere"}
	assert.Equal(t, filepath.Join("/tmp/somewhere", "cache.db"), cfg.CachePath())
}
