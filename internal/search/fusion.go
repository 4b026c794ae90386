package search

import "sort"

// fusedDoc accumulates the RRF score for one document across the
// lexical and semantic ranked lists.
type fusedDoc struct {
	documentID   string
	score        float64
	lexicalRank  int // 1-based, 0 if absent
	semanticRank int // 1-based, 0 if absent
	lexical      *LexicalItem
	semantic     *RerankedChunk
}

// fuseRanked merges the two ranked lists with Reciprocal Rank Fusion:
// each document accumulates 1/(k+rank) once per list it appears in,
// with rank the 1-based position within that list. The semantic list
// must already be threshold-filtered and deduplicated by document.
// Returns documents sorted by fused score descending with deterministic
// tie-breaking.
func fuseRanked(lexical []*LexicalItem, semantic []*RerankedChunk, k int) []*fusedDoc {
	if len(lexical) == 0 && len(semantic) == 0 {
		return []*fusedDoc{}
	}

	docs := make(map[string]*fusedDoc, len(lexical)+len(semantic))

	getOrCreate := func(id string) *fusedDoc {
		if d, ok := docs[id]; ok {
			return d
		}
		d := &fusedDoc{documentID: id}
		docs[id] = d
		return d
	}

	for rank, item := range lexical {
		d := getOrCreate(item.DocumentID)
		d.lexicalRank = rank + 1
		d.lexical = item
		d.score += 1.0 / float64(k+rank+1)
	}

	for rank, chunk := range semantic {
		d := getOrCreate(chunk.DocumentID)
		d.semanticRank = rank + 1
		d.semantic = chunk
		d.score += 1.0 / float64(k+rank+1)
	}

	fused := make([]*fusedDoc, 0, len(docs))
	for _, d := range docs {
		fused = append(fused, d)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.score != b.score {
			return a.score > b.score
		}
		// Prefer documents in both lists, then lexical order, then ID.
		aBoth := a.lexicalRank > 0 && a.semanticRank > 0
		bBoth := b.lexicalRank > 0 && b.semanticRank > 0
		if aBoth != bBoth {
			return aBoth
		}
		if a.lexicalRank != b.lexicalRank {
			if a.lexicalRank == 0 {
				return false
			}
			if b.lexicalRank == 0 {
				return true
			}
			return a.lexicalRank < b.lexicalRank
		}
		return a.documentID < b.documentID
	})

	return fused
}

// filterSemantic keeps chunks scoring at or above the rerank threshold,
// preserving score order.
func filterSemantic(chunks []*RerankedChunk, threshold float64) []*RerankedChunk {
	filtered := make([]*RerankedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.RerankScore >= threshold {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
