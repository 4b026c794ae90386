package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.InDelta(t, 0.35, cfg.Search.RerankThreshold, 1e-9)
	assert.InDelta(t, 0.55, cfg.Search.TopScoreCutoff, 1e-9)
	assert.Equal(t, 50, cfg.Search.MaxWindow)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, "fts5", cfg.Storage.LexicalBackend)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Search.RRFConstant, cfg.Search.RRFConstant)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosaic.yaml")
	content := `
version: 1
search:
  rrf_constant: 90
  rerank_threshold: 0.4
  top_score_cutoff: 0.6
  max_window: 50
  snippet_length: 220
  min_token_length: 4
  default_limit: 20
  max_limit: 100
  timeout: 5s
breaker:
  failure_threshold: 3
  reset_timeout: 10s
  half_open_timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Search.RRFConstant)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.ResetTimeout)
	// Untouched sections keep defaults.
	assert.Equal(t, "fts5", cfg.Storage.LexicalBackend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MOSAIC_RRF_CONSTANT", "75")
	t.Setenv("MOSAIC_LEXICAL_BACKEND", "bleve")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 75, cfg.Search.RRFConstant)
	assert.Equal(t, "bleve", cfg.Storage.LexicalBackend)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Storage.LexicalBackend = "postgres" }},
		{"zero rrf", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"threshold above one", func(c *Config) { c.Search.RerankThreshold = 1.5 }},
		{"cutoff below threshold", func(c *Config) { c.Search.TopScoreCutoff = 0.1 }},
		{"zero window", func(c *Config) { c.Search.MaxWindow = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxLimit = 1 }},
		{"zero failures", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
		{"zero reset", func(c *Config) { c.Breaker.ResetTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosaic.yaml")

	cfg := Default()
	cfg.Search.RRFConstant = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.RRFConstant)
}
