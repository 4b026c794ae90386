package provider

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// StaticDimensions is the fixed dimension of the offline provider.
const StaticDimensions = 64

// StaticProvider is a deterministic offline provider. Embeddings come
// from hashed token features, rerank scores from token overlap. Useful
// for tests and air-gapped deployments where no model server exists;
// quality is far below a real model but behavior is fully reproducible.
type StaticProvider struct{}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns the offline provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// Embed maps each text to a normalized bag-of-hashed-tokens vector.
// Identical texts always produce identical vectors.
func (s *StaticProvider) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashEmbed(text)
	}
	return vectors, nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, StaticDimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		// Two buckets per token so short texts still get some spread.
		vec[sum%StaticDimensions] += 1
		vec[(sum>>8)%StaticDimensions] += 0.5
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Rerank scores candidates by the fraction of query tokens they contain.
func (s *StaticProvider) Rerank(ctx context.Context, query string, texts []string) ([]RerankResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = struct{}{}
	}

	results := make([]RerankResult, len(texts))
	for i, text := range texts {
		results[i] = RerankResult{Index: i, Score: overlapScore(querySet, text)}
	}
	return results, nil
}

func overlapScore(querySet map[string]struct{}, text string) float64 {
	if len(querySet) == 0 {
		return 0
	}
	seen := make(map[string]struct{})
	for _, t := range tokenize(text) {
		if _, ok := querySet[t]; ok {
			seen[t] = struct{}{}
		}
	}
	return float64(len(seen)) / float64(len(querySet))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r <= 127
	})
}

func (s *StaticProvider) Dimensions() int { return StaticDimensions }

func (s *StaticProvider) ModelName() string { return "static" }

func (s *StaticProvider) Available(ctx context.Context) bool { return true }

func (s *StaticProvider) Close() error { return nil }
