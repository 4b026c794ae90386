// Package provider defines the model provider interface used for
// embedding and reranking, with an HTTP implementation, an LRU-cached
// wrapper, and a deterministic offline provider for tests and air-gapped
// setups.
package provider

import "context"

// InputType distinguishes query embeddings from document embeddings so
// asymmetric models can apply the right instruction prefix.
type InputType string

const (
	InputTypeQuery    InputType = "query"
	InputTypeDocument InputType = "document"
)

// RerankResult scores one candidate text against the query. Index refers
// to the caller's candidate slice.
type RerankResult struct {
	Index int
	Score float64
}

// Provider generates embeddings and relevance scores. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)

	// Rerank scores each candidate text against the query. Results are
	// returned in candidate order, not sorted by score.
	Rerank(ctx context.Context, query string, texts []string) ([]RerankResult, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName identifies the embedding model, used for cache keying.
	ModelName() string

	// Available reports whether the provider can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
