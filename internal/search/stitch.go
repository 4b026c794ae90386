package search

const (
	// stitchCompareWindow bounds the suffix/prefix comparison.
	stitchCompareWindow = 100

	// stitchMinOverlap discards short matches that are almost certainly
	// coincidental rather than real chunk-boundary overlap.
	stitchMinOverlap = 21
)

// mergeAdjacent joins two adjacent chunk texts. Chunks are created with
// overlapping boundaries during indexing, so the end of prev often
// repeats at the start of next: the longest shared suffix/prefix within
// the compare window is dropped once. Without a qualifying overlap the
// texts are joined with a single space.
func mergeAdjacent(prev, next string) string {
	if prev == "" {
		return next
	}
	if next == "" {
		return prev
	}

	maxSize := min(stitchCompareWindow, len(prev), len(next))
	for size := maxSize; size >= stitchMinOverlap; size-- {
		if prev[len(prev)-size:] == next[:size] {
			return prev + next[size:]
		}
	}
	return prev + " " + next
}

// stitchContext merges a chunk with its immediate neighbors into one
// readable span.
func stitchContext(before, content, after string) string {
	return mergeAdjacent(mergeAdjacent(before, content), after)
}
