package layout

import (
	"github.com/matzehuels/canvasgraph/pkg/canvas"
)

// axes projects sizes and positions onto the layout's main axis (the rank
// direction) and cross axis.
type axes struct{ lr bool }

func (a axes) main(s canvas.Size) float64 {
	if a.lr {
		return s.Width
	}
	return s.Height
}

func (a axes) cross(s canvas.Size) float64 {
	if a.lr {
		return s.Height
	}
	return s.Width
}

// center converts a top-left position into (main, cross) center coordinates.
func (a axes) center(p canvas.Position, s canvas.Size) (float64, float64) {
	cx, cy := p.X+s.Width/2, p.Y+s.Height/2
	if a.lr {
		return cx, cy
	}
	return cy, cx
}

// topLeft converts (main, cross) center coordinates into a top-left position.
func (a axes) topLeft(main, cross float64, s canvas.Size) canvas.Position {
	if a.lr {
		return canvas.Position{X: main - s.Width/2, Y: cross - s.Height/2}
	}
	return canvas.Position{X: cross - s.Width/2, Y: main - s.Height/2}
}

// coords holds center coordinates of the real nodes.
type coords struct {
	main  []float64
	cross []float64
	done  []bool
}

// assignCoordinates computes center coordinates for every real node.
func assignCoordinates(g *graph, layers [][]int, opts *Options) coords {
	ax := axes{lr: opts.Direction == canvas.DirectionLR}
	c := coords{
		main:  make([]float64, g.real),
		cross: make([]float64, g.real),
		done:  make([]bool, g.real),
	}
	for u := range g.real {
		if g.fixed[u] {
			c.main[u], c.cross[u] = ax.center(g.pos[u], g.size[u])
		}
	}

	placed := make([][]int, len(layers))
	for r, layer := range layers {
		for _, u := range layer {
			if u < g.real {
				placed[r] = append(placed[r], u)
			}
		}
	}

	assignMain(g, placed, ax, opts, &c)

	// Down: follow predecessors.
	for _, layer := range placed {
		placeLayer(g, layer, g.in, ax, opts, &c)
	}
	// Up: center parents over their children.
	for r := len(placed) - 2; r >= 0; r-- {
		placeLayer(g, placed[r], g.out, ax, opts, &c)
	}
	return c
}

// assignMain stacks ranks along the main axis. Ranks holding fixed nodes are
// anchored on them; the others are spaced from their neighbors by the
// deepest node of each rank plus RankSep.
func assignMain(g *graph, layers [][]int, ax axes, opts *Options, c *coords) {
	n := len(layers)
	if n == 0 {
		return
	}
	depth := make([]float64, n)
	anchor := make([]float64, n)
	anchored := make([]bool, n)
	first := -1
	for r, layer := range layers {
		sum, count := 0.0, 0
		for _, u := range layer {
			depth[r] = max(depth[r], ax.main(g.size[u]))
			if g.fixed[u] {
				sum += c.main[u]
				count++
			}
		}
		if count > 0 {
			anchor[r] = sum / float64(count)
			anchored[r] = true
			if first < 0 {
				first = r
			}
		}
	}

	center := make([]float64, n)
	if first < 0 {
		first = 0
		center[0] = depth[0] / 2
	} else {
		center[first] = anchor[first]
	}
	for r := first + 1; r < n; r++ {
		if anchored[r] {
			center[r] = anchor[r]
			continue
		}
		center[r] = center[r-1] + depth[r-1]/2 + opts.RankSep + depth[r]/2
	}
	for r := first - 1; r >= 0; r-- {
		center[r] = center[r+1] - depth[r+1]/2 - opts.RankSep - depth[r]/2
	}

	for r, layer := range layers {
		for _, u := range layer {
			if !g.fixed[u] {
				c.main[u] = center[r]
			}
		}
	}
}

// placeLayer positions the movable nodes of one layer on the cross axis.
// Each node wants to sit at the mean of its placed neighbors in adj; the
// layer order and NodeSep gaps are hard constraints. The least-squares
// solution under those constraints is an isotonic regression, solved with
// pool-adjacent-violators. Movable nodes are then pushed clear of fixed ones.
func placeLayer(g *graph, layer []int, adj [][]int, ax axes, opts *Options, c *coords) {
	var movable, fixed []int
	for _, u := range layer {
		if g.fixed[u] {
			fixed = append(fixed, u)
		} else {
			movable = append(movable, u)
		}
	}
	if len(movable) == 0 {
		return
	}

	k := len(movable)
	gap := make([]float64, k)
	for i := 1; i < k; i++ {
		gap[i] = (ax.cross(g.size[movable[i-1]])+ax.cross(g.size[movable[i]]))/2 + opts.NodeSep
	}

	desired := make([]float64, k)
	known := make([]bool, k)
	for i, u := range movable {
		sum, count := 0.0, 0
		for _, v := range adj[u] {
			if c.done[v] {
				sum += c.cross[v]
				count++
			}
		}
		switch {
		case count > 0:
			desired[i], known[i] = sum/float64(count), true
		case c.done[u]:
			desired[i], known[i] = c.cross[u], true
		}
	}
	fillUnknown(desired, known, gap)

	offset := make([]float64, k)
	target := make([]float64, k)
	for i := range k {
		if i > 0 {
			offset[i] = offset[i-1] + gap[i]
		}
		target[i] = desired[i] - offset[i]
	}
	fit := isotonic(target)
	for i, u := range movable {
		c.cross[u] = fit[i] + offset[i]
	}

	if len(fixed) > 0 {
		avoidFixed(g, movable, fixed, gap, ax, opts, c)
	}
	for _, u := range movable {
		c.done[u] = true
	}
	for _, u := range fixed {
		c.done[u] = true
	}
}

// fillUnknown gives nodes without a preference a slot right after (or
// before) the nearest node that has one.
func fillUnknown(desired []float64, known []bool, gap []float64) {
	first := -1
	for i, ok := range known {
		if ok {
			first = i
			break
		}
	}
	if first < 0 {
		first = 0
		desired[0] = 0
		known[0] = true
	}
	for i := first - 1; i >= 0; i-- {
		desired[i] = desired[i+1] - gap[i+1]
	}
	for i := first + 1; i < len(desired); i++ {
		if !known[i] {
			desired[i] = desired[i-1] + gap[i]
		}
	}
}

// isotonic returns the non-decreasing sequence closest to xs in the least
// squares sense.
func isotonic(xs []float64) []float64 {
	type block struct {
		sum   float64
		count int
	}
	blocks := make([]block, 0, len(xs))
	for _, x := range xs {
		blocks = append(blocks, block{x, 1})
		for len(blocks) > 1 {
			a, b := blocks[len(blocks)-2], blocks[len(blocks)-1]
			if a.sum/float64(a.count) <= b.sum/float64(b.count) {
				break
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, block{a.sum + b.sum, a.count + b.count})
		}
	}
	out := make([]float64, 0, len(xs))
	for _, b := range blocks {
		mean := b.sum / float64(b.count)
		for range b.count {
			out = append(out, mean)
		}
	}
	return out
}

// avoidFixed walks the movable nodes in order and pushes each one past any
// fixed node it would overlap, keeping the gaps to its predecessor.
func avoidFixed(g *graph, movable, fixed []int, gap []float64, ax axes, opts *Options, c *coords) {
	for i, u := range movable {
		if i > 0 {
			c.cross[u] = max(c.cross[u], c.cross[movable[i-1]]+gap[i])
		}
		half := ax.cross(g.size[u]) / 2
		for moved := true; moved; {
			moved = false
			for _, f := range fixed {
				fHalf := ax.cross(g.size[f]) / 2
				lo := c.cross[f] - fHalf - opts.NodeSep - half
				hi := c.cross[f] + fHalf + opts.NodeSep + half
				if c.cross[u] > lo && c.cross[u] < hi {
					c.cross[u] = hi
					moved = true
				}
			}
		}
	}
}
