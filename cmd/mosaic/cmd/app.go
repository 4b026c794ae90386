package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mosaicdocs/mosaic/internal/audit"
	"github.com/mosaicdocs/mosaic/internal/config"
	"github.com/mosaicdocs/mosaic/internal/errors"
	"github.com/mosaicdocs/mosaic/internal/ingest"
	"github.com/mosaicdocs/mosaic/internal/provider"
	"github.com/mosaicdocs/mosaic/internal/search"
	"github.com/mosaicdocs/mosaic/internal/store"
)

// app bundles the wired components behind the CLI commands.
type app struct {
	cfg      *config.Config
	store    store.DocumentStore
	provider provider.Provider
	engine   *search.Engine
	indexer  *ingest.Indexer
	audit    *audit.SearchAuditLogger
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mosaic.db"
	}
	return filepath.Join(home, ".mosaic", "mosaic.db")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".mosaic", "config.yaml")
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultDBPath()
	}
	return cfg, nil
}

// openApp wires store, provider, breaker, engines and audit from config.
// Callers must close the returned app.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Storage.Path, store.VectorConfig{}, cfg.Storage.LexicalBackend)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var p provider.Provider
	if cfg.Provider.Offline {
		p = provider.NewStaticProvider()
	} else {
		p = provider.NewCachedProvider(provider.NewHTTPProvider(provider.HTTPConfig{
			Host:        cfg.Provider.Host,
			EmbedModel:  cfg.Provider.EmbedModel,
			RerankModel: cfg.Provider.RerankModel,
			Timeout:     cfg.Provider.Timeout,
		}), cfg.Provider.CacheSize)
	}

	breaker := errors.NewCircuitBreaker("provider",
		errors.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		errors.WithResetTimeout(cfg.Breaker.ResetTimeout),
		errors.WithHalfOpenTimeout(cfg.Breaker.HalfOpenTimeout),
	)

	searchCfg := search.Config{
		RRFConstant:     cfg.Search.RRFConstant,
		RerankThreshold: cfg.Search.RerankThreshold,
		TopScoreCutoff:  cfg.Search.TopScoreCutoff,
		MaxWindow:       cfg.Search.MaxWindow,
		SnippetLength:   cfg.Search.SnippetLength,
		MinTokenLength:  cfg.Search.MinTokenLength,
		DefaultLimit:    cfg.Search.DefaultLimit,
		MaxLimit:        cfg.Search.MaxLimit,
		Timeout:         cfg.Search.Timeout,
	}

	lexical := search.NewLexicalSearchEngine(s, slog.Default())
	semantic := search.NewSemanticSearchEngine(s, p, breaker, slog.Default(), searchCfg)

	engineOpts := []search.EngineOption{}
	var auditor *audit.SearchAuditLogger
	if sqlStore, ok := s.(*store.SQLiteStore); ok {
		auditor, err = audit.NewSearchAuditLogger(sqlStore.DB(), slog.Default())
		if err != nil {
			slog.Warn("audit logger unavailable", slog.String("error", err.Error()))
		} else {
			engineOpts = append(engineOpts, search.WithAuditor(auditor))
		}
	}

	engine := search.NewEngine(lexical, semantic, s, searchCfg, engineOpts...)
	indexer := ingest.NewIndexer(s, p, slog.Default(), ingest.Config{})

	return &app{
		cfg:      cfg,
		store:    s,
		provider: p,
		engine:   engine,
		indexer:  indexer,
		audit:    auditor,
	}, nil
}

func (a *app) Close() {
	_ = a.provider.Close()
	_ = a.store.Close()
}
