// Package config loads and validates the retrieval service configuration.
//
// Precedence, lowest to highest:
//  1. Built-in defaults
//  2. Config file (mosaic.yaml)
//  3. Environment variables (MOSAIC_*)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the retrieval service.
type Config struct {
	Version  int            `yaml:"version"`
	Storage  StorageConfig  `yaml:"storage"`
	Search   SearchConfig   `yaml:"search"`
	Provider ProviderConfig `yaml:"provider"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig configures the document/chunk store.
type StorageConfig struct {
	// Path is the SQLite database path. Empty means in-memory (tests).
	Path string `yaml:"path"`

	// LexicalBackend selects the full-text backend.
	// Options: "fts5" (default, SQLite FTS5) or "bleve".
	LexicalBackend string `yaml:"lexical_backend"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// RRFConstant is the RRF fusion smoothing parameter (k).
	// Default: 60 (industry standard used by Azure AI Search, OpenSearch).
	RRFConstant int `yaml:"rrf_constant"`

	// RerankThreshold is the minimum rerank score for a semantic hit to
	// contribute to fusion (default: 0.35).
	RerankThreshold float64 `yaml:"rerank_threshold"`

	// TopScoreCutoff is the stricter cutoff applied to the best semantic
	// score when lexical search found nothing (default: 0.55). Below it
	// the response is an explicit empty page instead of weak guesses.
	TopScoreCutoff float64 `yaml:"top_score_cutoff"`

	// MaxWindow caps the semantic k, the semantic recall, and the expanded
	// lexical window (default: 50).
	MaxWindow int `yaml:"max_window"`

	// SnippetLength is the maximum display snippet length in characters (default: 220).
	SnippetLength int `yaml:"snippet_length"`

	// MinTokenLength is the minimum query token length; shorter tokens are
	// treated as noise (default: 4).
	MinTokenLength int `yaml:"min_token_length"`

	// DefaultLimit is the default page size (default: 10).
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the maximum allowed page size (default: 100).
	MaxLimit int `yaml:"max_limit"`

	// Timeout is the maximum duration of one hybrid search (default: 5s).
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig configures the embedding/rerank provider.
type ProviderConfig struct {
	// Host is the provider API endpoint.
	Host string `yaml:"host"`

	// EmbedModel is the embedding model identifier.
	EmbedModel string `yaml:"embed_model"`

	// RerankModel is the rerank model identifier.
	RerankModel string `yaml:"rerank_model"`

	// Timeout bounds each provider call (default: 30s). On expiry the call
	// counts as a breaker-recordable failure.
	Timeout time.Duration `yaml:"timeout"`

	// CacheSize is the query-embedding LRU cache size (default: 1000).
	CacheSize int `yaml:"cache_size"`

	// Offline uses deterministic local embeddings instead of the HTTP
	// provider. Intended for development and tests.
	Offline bool `yaml:"offline"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// circuit (default: 5).
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long the circuit stays open before a half-open
	// trial is allowed (default: 30s).
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenTimeout bounds the half-open trial call (default: 10s).
	HalfOpenTimeout time.Duration `yaml:"half_open_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			LexicalBackend: "fts5",
		},
		Search: SearchConfig{
			RRFConstant:     60,
			RerankThreshold: 0.35,
			TopScoreCutoff:  0.55,
			MaxWindow:       50,
			SnippetLength:   220,
			MinTokenLength:  4,
			DefaultLimit:    10,
			MaxLimit:        100,
			Timeout:         5 * time.Second,
		},
		Provider: ProviderConfig{
			Host:        "http://localhost:8090",
			EmbedModel:  "mosaic-embed-v1",
			RerankModel: "mosaic-rerank-v1",
			Timeout:     30 * time.Second,
			CacheSize:   1000,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given path, merging over defaults and
// applying environment overrides. A missing file is not an error: defaults
// plus environment are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv applies MOSAIC_* environment overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MOSAIC_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("MOSAIC_LEXICAL_BACKEND"); v != "" {
		cfg.Storage.LexicalBackend = v
	}
	if v := os.Getenv("MOSAIC_PROVIDER_HOST"); v != "" {
		cfg.Provider.Host = v
	}
	if v := os.Getenv("MOSAIC_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("MOSAIC_RERANK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.RerankThreshold = f
		}
	}
	if v := os.Getenv("MOSAIC_TOP_SCORE_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.TopScoreCutoff = f
		}
	}
	if v := os.Getenv("MOSAIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Storage.LexicalBackend {
	case "", "fts5", "bleve":
	default:
		return fmt.Errorf("invalid lexical_backend %q (use fts5 or bleve)", c.Storage.LexicalBackend)
	}

	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.RerankThreshold < 0 || c.Search.RerankThreshold > 1 {
		return fmt.Errorf("rerank_threshold must be in [0,1], got %v", c.Search.RerankThreshold)
	}
	if c.Search.TopScoreCutoff < c.Search.RerankThreshold {
		return fmt.Errorf("top_score_cutoff (%v) must not be below rerank_threshold (%v)",
			c.Search.TopScoreCutoff, c.Search.RerankThreshold)
	}
	if c.Search.MaxWindow <= 0 {
		return fmt.Errorf("max_window must be positive, got %d", c.Search.MaxWindow)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("invalid limits: default %d, max %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("reset_timeout must be positive, got %v", c.Breaker.ResetTimeout)
	}

	return nil
}

// Save writes the configuration to the given path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
