package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mosaicdocs/mosaic/internal/errors"
)

// Defaults for the HTTP provider.
const (
	DefaultHost        = "http://localhost:8090"
	DefaultEmbedModel  = "mosaic-embed-v1"
	DefaultRerankModel = "mosaic-rerank-v1"
	DefaultTimeout     = 30 * time.Second
	DefaultDimensions  = 768
	defaultPoolSize    = 4
)

// HTTPConfig configures the HTTP provider.
type HTTPConfig struct {
	Host        string
	EmbedModel  string
	RerankModel string
	Timeout     time.Duration
	Dimensions  int
	PoolSize    int
}

// HTTPProvider talks to a model server exposing /v1/embed, /v1/rerank
// and /v1/health endpoints.
type HTTPProvider struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider against cfg.Host. No network call
// is made at construction; Available probes the health endpoint.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.RerankModel == "" {
		cfg.RerankModel = DefaultRerankModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: per-request context deadlines control
	// cancellation, and the breaker may shorten them for trial calls.
	return &HTTPProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
}

// Embed returns one vector per input text, in order.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if p.isClosed() {
		return nil, errors.New(errors.ErrCodeProviderEmbed, "provider is closed", nil)
	}

	reqBody := map[string]any{
		"model":      p.config.EmbedModel,
		"input":      texts,
		"input_type": string(inputType),
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := p.post(ctx, "/v1/embed", reqBody, &result); err != nil {
		return nil, errors.ProviderError(errors.ErrCodeProviderEmbed, "embed request failed", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, errors.New(errors.ErrCodeProviderEmbed,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)), nil)
	}

	// Adopt the server's dimension on first successful call.
	p.mu.Lock()
	if len(result.Embeddings) > 0 && len(result.Embeddings[0]) > 0 {
		p.dims = len(result.Embeddings[0])
	}
	p.mu.Unlock()

	return result.Embeddings, nil
}

// Rerank scores each candidate against the query, in candidate order.
func (p *HTTPProvider) Rerank(ctx context.Context, query string, texts []string) ([]RerankResult, error) {
	if len(texts) == 0 {
		return []RerankResult{}, nil
	}
	if p.isClosed() {
		return nil, errors.New(errors.ErrCodeProviderRerank, "provider is closed", nil)
	}

	reqBody := map[string]any{
		"model":     p.config.RerankModel,
		"query":     query,
		"documents": texts,
	}

	var result struct {
		Scores []float64 `json:"scores"`
	}
	if err := p.post(ctx, "/v1/rerank", reqBody, &result); err != nil {
		return nil, errors.ProviderError(errors.ErrCodeProviderRerank, "rerank request failed", err)
	}

	if len(result.Scores) != len(texts) {
		return nil, errors.New(errors.ErrCodeProviderRerank,
			fmt.Sprintf("expected %d scores, got %d", len(texts), len(result.Scores)), nil)
	}

	results := make([]RerankResult, len(result.Scores))
	for i, score := range result.Scores {
		results[i] = RerankResult{Index: i, Score: score}
	}
	return results, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, reqBody any, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	// Respect an existing deadline; otherwise apply the configured one.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (p *HTTPProvider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dims
}

// ModelName identifies the embedding model.
func (p *HTTPProvider) ModelName() string {
	return p.config.EmbedModel
}

// Available probes the health endpoint with a short timeout.
func (p *HTTPProvider) Available(ctx context.Context) bool {
	if p.isClosed() {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.config.Host+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (p *HTTPProvider) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Close drops idle connections. Idempotent.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
