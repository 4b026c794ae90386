package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexItem(id string) *LexicalItem {
	return &LexicalItem{DocumentID: id, Title: id, Snippet: "snippet " + id}
}

func semChunk(id string, score float64) *RerankedChunk {
	return &RerankedChunk{DocumentID: id, Content: "content " + id, RerankScore: score}
}

func TestFuseRanked_BothListsOutrankSingle(t *testing.T) {
	// doc-b appears in both lists, doc-a only leads the lexical list
	lexical := []*LexicalItem{lexItem("doc-a"), lexItem("doc-b")}
	semantic := []*RerankedChunk{semChunk("doc-b", 0.9)}

	fused := fuseRanked(lexical, semantic, 60)

	require.Len(t, fused, 2)
	assert.Equal(t, "doc-b", fused[0].documentID)
	assert.Equal(t, "doc-a", fused[1].documentID)
}

func TestFuseRanked_Monotonic(t *testing.T) {
	lexical := []*LexicalItem{lexItem("doc-a"), lexItem("doc-b")}

	without := fuseRanked(lexical, nil, 60)
	with := fuseRanked(lexical, []*RerankedChunk{semChunk("doc-b", 0.8)}, 60)

	scoreOf := func(docs []*fusedDoc, id string) float64 {
		for _, d := range docs {
			if d.documentID == id {
				return d.score
			}
		}
		t.Fatalf("document %s not fused", id)
		return 0
	}

	// Adding a semantic hit never lowers a document's fused score
	assert.Greater(t, scoreOf(with, "doc-b"), scoreOf(without, "doc-b"))
	assert.Equal(t, scoreOf(without, "doc-a"), scoreOf(with, "doc-a"))
}

func TestFuseRanked_ScoreIsSumOfRankContributions(t *testing.T) {
	lexical := []*LexicalItem{lexItem("doc-a")}
	semantic := []*RerankedChunk{semChunk("doc-b", 0.9), semChunk("doc-a", 0.8)}

	fused := fuseRanked(lexical, semantic, 60)

	require.Len(t, fused, 2)
	var docA *fusedDoc
	for _, d := range fused {
		if d.documentID == "doc-a" {
			docA = d
		}
	}
	require.NotNil(t, docA)
	// Lexical rank 1 plus semantic rank 2
	assert.InDelta(t, 1.0/61+1.0/62, docA.score, 1e-9)
}

func TestFuseRanked_EmptyInputs(t *testing.T) {
	fused := fuseRanked(nil, nil, 60)

	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestFuseRanked_DeterministicTieBreak(t *testing.T) {
	// Two semantic-only documents at consecutive ranks never tie, but
	// identical single-list ranks across runs must order the same way
	semantic := []*RerankedChunk{semChunk("doc-x", 0.9), semChunk("doc-y", 0.8)}

	first := fuseRanked(nil, semantic, 60)
	second := fuseRanked(nil, semantic, 60)

	require.Len(t, first, 2)
	assert.Equal(t, first[0].documentID, second[0].documentID)
	assert.Equal(t, first[1].documentID, second[1].documentID)
}

func TestFilterSemantic(t *testing.T) {
	chunks := []*RerankedChunk{
		semChunk("doc-a", 0.9),
		semChunk("doc-b", 0.35),
		semChunk("doc-c", 0.2),
	}

	filtered := filterSemantic(chunks, 0.35)

	require.Len(t, filtered, 2)
	assert.Equal(t, "doc-a", filtered[0].DocumentID)
	assert.Equal(t, "doc-b", filtered[1].DocumentID)
}
