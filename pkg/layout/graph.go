package layout

import (
	"slices"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
)

// graph is an index-based adjacency structure. Indices follow the input
// node order; virtual nodes added by subdivide come after the real ones.
type graph struct {
	ids   []string
	index map[string]int
	size  []canvas.Size
	fixed []bool
	pos   []canvas.Position // top-left, only meaningful for fixed nodes

	out [][]int
	in  [][]int

	real   int   // number of real nodes
	origin []int // source real node of each virtual node, -1 for real nodes
	rank   []int
}

// buildGraph indexes nodes and edges. Nodes carrying a resolvable parent are
// laid out by their parent, so they are left out. Edges with a missing
// endpoint and repeated source/target pairs are skipped.
func buildGraph(nodes []canvas.Node, edges []canvas.Edge, opts *Options) (g *graph, skipped []string) {
	all := canvas.NewIndex(nodes)
	g = &graph{index: make(map[string]int, len(nodes))}
	for _, n := range nodes {
		if _, dup := g.index[n.ID]; dup {
			continue
		}
		if n.ParentID != "" && all.Has(n.ParentID) {
			continue
		}
		pos, fixed := opts.Fixed[n.ID]
		g.index[n.ID] = len(g.ids)
		g.ids = append(g.ids, n.ID)
		g.size = append(g.size, opts.size(n))
		g.fixed = append(g.fixed, fixed)
		g.pos = append(g.pos, pos)
		g.origin = append(g.origin, -1)
	}
	g.real = len(g.ids)
	g.out = make([][]int, g.real)
	g.in = make([][]int, g.real)

	for _, e := range edges {
		u, uok := g.index[e.Source]
		v, vok := g.index[e.Target]
		if !uok || !vok {
			if !all.Has(e.Source) || !all.Has(e.Target) {
				skipped = append(skipped, e.ID)
			}
			continue
		}
		if slices.Contains(g.out[u], v) {
			continue
		}
		g.out[u] = append(g.out[u], v)
		g.in[v] = append(g.in[v], u)
	}
	return g, skipped
}

func (g *graph) removeEdge(u, v int) {
	if i := slices.Index(g.out[u], v); i >= 0 {
		g.out[u] = slices.Delete(g.out[u], i, i+1)
	}
	if i := slices.Index(g.in[v], u); i >= 0 {
		g.in[v] = slices.Delete(g.in[v], i, i+1)
	}
}

// breakCycles removes every back-edge found by a depth-first search that
// starts from the roots in input order, then from any node still unvisited.
// It returns the number of edges removed.
func breakCycles(g *graph) int {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, g.real)
	var backEdges [][2]int

	var dfs func(u int)
	dfs = func(u int) {
		color[u] = gray
		for _, v := range g.out[u] {
			switch color[v] {
			case white:
				dfs(v)
			case gray:
				backEdges = append(backEdges, [2]int{u, v})
			}
		}
		color[u] = black
	}

	for u := range g.real {
		if len(g.in[u]) == 0 && color[u] == white {
			dfs(u)
		}
	}
	for u := range g.real {
		if color[u] == white {
			dfs(u)
		}
	}

	for _, e := range backEdges {
		g.removeEdge(e[0], e[1])
	}
	return len(backEdges)
}

// assignRanks places every node one rank after its deepest predecessor
// (longest path, Kahn's algorithm). The graph must be acyclic.
func assignRanks(g *graph) {
	g.rank = make([]int, g.real)
	inDegree := make([]int, g.real)
	queue := make([]int, 0, g.real)
	for u := range g.real {
		inDegree[u] = len(g.in[u])
		if inDegree[u] == 0 {
			queue = append(queue, u)
		}
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.out[u] {
			if r := g.rank[u] + 1; r > g.rank[v] {
				g.rank[v] = r
			}
			inDegree[v]--
			if inDegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
}

// maxRank returns the deepest rank, or -1 for an empty graph.
func (g *graph) maxRank() int {
	m := -1
	for _, r := range g.rank {
		m = max(m, r)
	}
	return m
}

// layered is the subdivided view used for ordering: every edge connects
// adjacent ranks.
type layered struct {
	out    [][]int
	in     [][]int
	layers [][]int
	origin []int
	real   int
}

// subdivide replaces edges spanning several ranks with chains of virtual
// nodes, one per intermediate rank.
func subdivide(g *graph) *layered {
	l := &layered{real: g.real}
	l.out = make([][]int, g.real)
	l.in = make([][]int, g.real)
	l.origin = slices.Clone(g.origin)
	rank := slices.Clone(g.rank)

	link := func(u, v int) {
		l.out[u] = append(l.out[u], v)
		l.in[v] = append(l.in[v], u)
	}
	for u := range g.real {
		for _, v := range g.out[u] {
			prev := u
			for r := g.rank[u] + 1; r < g.rank[v]; r++ {
				w := len(l.out)
				l.out = append(l.out, nil)
				l.in = append(l.in, nil)
				l.origin = append(l.origin, u)
				rank = append(rank, r)
				link(prev, w)
				prev = w
			}
			link(prev, v)
		}
	}

	l.layers = make([][]int, g.maxRank()+1)
	visited := make([]bool, len(l.out))
	var visit func(u int)
	visit = func(u int) {
		if visited[u] {
			return
		}
		visited[u] = true
		l.layers[rank[u]] = append(l.layers[rank[u]], u)
		for _, v := range l.out[u] {
			visit(v)
		}
	}
	for u := range g.real {
		if len(l.in[u]) == 0 {
			visit(u)
		}
	}
	for u := range g.real {
		visit(u)
	}
	return l
}
