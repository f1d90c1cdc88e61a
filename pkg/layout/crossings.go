package layout

import "slices"

// countCrossings sums the crossings between every pair of adjacent layers.
func countCrossings(l *layered, pos []int) int {
	total := 0
	for r := 0; r+1 < len(l.layers); r++ {
		total += countLayerCrossings(l.layers[r], len(l.layers[r+1]), l.out, pos)
	}
	return total
}

// countLayerCrossings counts edge crossings between an upper layer and the
// layer below it. Two edges (u1,v1) and (u2,v2) cross iff
// pos(u1) < pos(u2) and pos(v1) > pos(v2), so with edges sorted by source
// position the answer is the number of inversions among target positions,
// counted with a Fenwick tree in O(E log V).
func countLayerCrossings(upper []int, lowerLen int, out [][]int, pos []int) int {
	if len(upper) == 0 || lowerLen == 0 {
		return 0
	}

	type edge struct{ upper, lower int }
	var edges []edge
	for _, u := range upper {
		for _, v := range out[u] {
			edges = append(edges, edge{pos[u], pos[v]})
		}
	}
	if len(edges) < 2 {
		return 0
	}
	slices.SortFunc(edges, func(a, b edge) int {
		if a.upper != b.upper {
			return a.upper - b.upper
		}
		return a.lower - b.lower
	})

	fenwick := make([]int, lowerLen+1)
	crossings, seen := 0, 0
	for _, e := range edges {
		lessOrEqual := 0
		for q := e.lower + 1; q > 0; q -= q & (-q) {
			lessOrEqual += fenwick[q]
		}
		crossings += seen - lessOrEqual

		seen++
		for i := e.lower + 1; i < len(fenwick); i += i & (-i) {
			fenwick[i]++
		}
	}
	return crossings
}
