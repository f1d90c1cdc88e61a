package layout

import (
	"slices"
	"sort"
)

// order reorders every layer with alternating barycenter sweeps and keeps
// the ordering with the fewest crossings. The initial ordering from
// subdivide is a depth-first order, which is already a good start for
// tree-shaped canvases.
func order(l *layered, iterations int) (crossings int) {
	pos := make([]int, len(l.out))
	index := func() {
		for _, layer := range l.layers {
			for i, u := range layer {
				pos[u] = i
			}
		}
	}
	index()

	best := countCrossings(l, pos)
	bestLayers := cloneLayers(l.layers)
	for it := 0; it < iterations && best > 0; it++ {
		if it%2 == 0 {
			for r := 1; r < len(l.layers); r++ {
				sortLayer(l.layers[r], l.in, pos)
			}
		} else {
			for r := len(l.layers) - 2; r >= 0; r-- {
				sortLayer(l.layers[r], l.out, pos)
			}
		}
		index()
		if c := countCrossings(l, pos); c < best {
			best = c
			bestLayers = cloneLayers(l.layers)
		}
	}
	l.layers = bestLayers
	return best
}

// sortLayer stably sorts layer by the mean position of each node's
// neighbors in the adjacent layer. Nodes without neighbors keep their slot.
func sortLayer(layer []int, adj [][]int, pos []int) {
	type entry struct {
		node int
		bc   float64
	}
	entries := make([]entry, len(layer))
	for i, u := range layer {
		bc := float64(i)
		if n := len(adj[u]); n > 0 {
			sum := 0
			for _, v := range adj[u] {
				sum += pos[v]
			}
			bc = float64(sum) / float64(n)
		}
		entries[i] = entry{u, bc}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].bc < entries[j].bc })
	for i, e := range entries {
		layer[i] = e.node
		pos[e.node] = i
	}
}

func cloneLayers(layers [][]int) [][]int {
	out := make([][]int, len(layers))
	for i, layer := range layers {
		out[i] = slices.Clone(layer)
	}
	return out
}
