package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings to cache.
// At 768 dimensions * 4 bytes * 1000 entries ≈ 3MB memory.
const DefaultCacheSize = 1000

// CachedProvider wraps a Provider with LRU caching of embeddings.
// Repeated queries skip the round trip to the model server. Rerank
// calls are never cached since candidate sets rarely repeat.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps inner with an embedding cache of cacheSize
// entries.
func NewCachedProvider(inner Provider, cacheSize int) *CachedProvider {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedProvider{inner: inner, cache: cache}
}

// cacheKey hashes text, model, and input type so query and document
// embeddings of the same text never collide.
func (c *CachedProvider) cacheKey(text string, inputType InputType) string {
	combined := text + "\x00" + c.inner.ModelName() + "\x00" + string(inputType)
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns cached embeddings where available and batches the rest
// through the inner provider.
func (c *CachedProvider) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missedIndices := make([]int, 0, len(texts))
	missedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text, inputType)); ok {
			results[i] = vec
		} else {
			missedIndices = append(missedIndices, i)
			missedTexts = append(missedTexts, text)
		}
	}

	if len(missedTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.Embed(ctx, missedTexts, inputType)
	if err != nil {
		return nil, err
	}

	for j, idx := range missedIndices {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx], inputType), fresh[j])
	}

	return results, nil
}

// Rerank passes through to the inner provider.
func (c *CachedProvider) Rerank(ctx context.Context, query string, texts []string) ([]RerankResult, error) {
	return c.inner.Rerank(ctx, query, texts)
}

func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedProvider) ModelName() string { return c.inner.ModelName() }

func (c *CachedProvider) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

func (c *CachedProvider) Close() error { return c.inner.Close() }
