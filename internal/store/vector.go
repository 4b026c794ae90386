package store

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// VectorConfig configures the in-memory vector indexes.
type VectorConfig struct {
	// Dimensions is the embedding dimension. 0 means adopt the dimension
	// of the first vector added.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// vectorHit is an internal nearest-neighbor result.
type vectorHit struct {
	key        string
	distance   float32
	similarity float32
}

// tenantGraph is one tenant's HNSW graph with string key mappings.
type tenantGraph struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// VectorIndex maintains one HNSW graph per tenant so nearest-neighbor
// search can never cross a tenant boundary. Cosine metric throughout;
// vectors are normalized on insert.
type VectorIndex struct {
	mu      sync.RWMutex
	config  VectorConfig
	tenants map[string]*tenantGraph
}

// NewVectorIndex creates an empty per-tenant vector index.
func NewVectorIndex(cfg VectorConfig) *VectorIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &VectorIndex{
		config:  cfg,
		tenants: make(map[string]*tenantGraph),
	}
}

// graphFor returns the tenant's graph, creating it if needed.
// Must be called with the write lock held.
func (v *VectorIndex) graphFor(tenantID string) *tenantGraph {
	tg, ok := v.tenants[tenantID]
	if !ok {
		g := hnsw.NewGraph[uint64]()
		g.Distance = hnsw.CosineDistance
		g.M = v.config.M
		g.EfSearch = v.config.EfSearch
		g.Ml = 0.25
		tg = &tenantGraph{
			graph:  g,
			idMap:  make(map[string]uint64),
			keyMap: make(map[uint64]string),
		}
		v.tenants[tenantID] = tg
	}
	return tg
}

// Add inserts vectors under the tenant. Existing keys are replaced via
// lazy deletion: the old node stays in the graph but is dropped from the
// key mappings and filtered out of results.
func (v *VectorIndex) Add(tenantID string, keys []string, vectors [][]float32) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) != len(vectors) {
		return fmt.Errorf("keys and vectors length mismatch: %d vs %d", len(keys), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.config.Dimensions == 0 {
		v.config.Dimensions = len(vectors[0])
	}
	for _, vec := range vectors {
		if len(vec) != v.config.Dimensions {
			return ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(vec)}
		}
	}

	tg := v.graphFor(tenantID)
	for i, id := range keys {
		if existingKey, exists := tg.idMap[id]; exists {
			delete(tg.keyMap, existingKey)
			delete(tg.idMap, id)
		}

		key := tg.nextKey
		tg.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		tg.graph.Add(hnsw.MakeNode(key, vec))
		tg.idMap[id] = key
		tg.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest keys for the tenant, ordered by ascending
// distance. An unknown tenant yields an empty result.
func (v *VectorIndex) Search(tenantID string, query []float32, k int) ([]vectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	tg, ok := v.tenants[tenantID]
	if !ok || tg.graph.Len() == 0 {
		return []vectorHit{}, nil
	}

	if v.config.Dimensions != 0 && len(query) != v.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(query)}
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Over-fetch to compensate for lazily deleted nodes.
	orphans := tg.graph.Len() - len(tg.idMap)
	nodes := tg.graph.Search(normalized, k+orphans)

	hits := make([]vectorHit, 0, k)
	for _, node := range nodes {
		id, exists := tg.keyMap[node.Key]
		if !exists {
			continue // lazily deleted
		}
		distance := tg.graph.Distance(normalized, node.Value)
		hits = append(hits, vectorHit{
			key:        id,
			distance:   distance,
			similarity: 1.0 - distance/2.0,
		})
		if len(hits) == k {
			break
		}
	}

	return hits, nil
}

// Delete removes keys from the tenant's index via lazy deletion.
func (v *VectorIndex) Delete(tenantID string, keys []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tg, ok := v.tenants[tenantID]
	if !ok {
		return
	}
	for _, id := range keys {
		if key, exists := tg.idMap[id]; exists {
			delete(tg.keyMap, key)
			delete(tg.idMap, id)
		}
	}
}

// Count returns the number of live vectors for the tenant.
func (v *VectorIndex) Count(tenantID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	tg, ok := v.tenants[tenantID]
	if !ok {
		return 0
	}
	return len(tg.idMap)
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
