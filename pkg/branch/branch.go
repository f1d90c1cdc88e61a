// Package branch re-lays out part of a canvas while leaving the rest where
// the user put it.
//
// [Relayout] runs the layered layout over one branch with every node outside
// the affected ranks pinned. [LayoutDescendants] is the lighter pass run after
// a node is attached: it stacks the descendants of the start nodes in
// columns to their right.
package branch

import (
	"cmp"
	"context"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/placement"
)

// maxOverlapPasses bounds the push-down pass of LayoutDescendants.
const maxOverlapPasses = 10

// Options configures Relayout.
type Options struct {
	// FromRoot pins only the roots and re-flows everything else. Otherwise
	// every node above the deepest level is pinned.
	FromRoot bool

	Spacing   placement.Spacing
	Direction canvas.Direction
	Logger    *log.Logger
}

// DefaultOptions returns left-to-right options with the canvas spacing.
func DefaultOptions() Options {
	return Options{Spacing: placement.DefaultSpacing(), Direction: canvas.DirectionLR}
}

// Levels returns the BFS distance of every branch node from the nearest
// root, following only edges between branch nodes. Unreachable nodes get -1.
func Levels(branch []canvas.Node, edges []canvas.Edge, roots []canvas.Node) map[string]int {
	inBranch := make(map[string]bool, len(branch))
	for _, n := range branch {
		inBranch[n.ID] = true
	}
	out := adjacency(edges, inBranch)

	levels := make(map[string]int, len(branch))
	for _, n := range branch {
		levels[n.ID] = -1
	}
	var queue []string
	for _, r := range roots {
		if inBranch[r.ID] && levels[r.ID] < 0 {
			levels[r.ID] = 0
			queue = append(queue, r.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range out[id] {
			if levels[next] < 0 {
				levels[next] = levels[id] + 1
				queue = append(queue, next)
			}
		}
	}
	return levels
}

// adjacency maps sources to targets in edge order, keeping only edges whose
// endpoints pass keep (all edges when keep is nil).
func adjacency(edges []canvas.Edge, keep map[string]bool) map[string][]string {
	out := make(map[string][]string)
	for _, e := range edges {
		if keep != nil && (!keep[e.Source] || !keep[e.Target]) {
			continue
		}
		out[e.Source] = append(out[e.Source], e.Target)
	}
	return out
}

// Relayout positions the branch with the layered layout, pinning the roots
// (FromRoot) or every node above the deepest level. Pinned nodes are
// returned exactly as given. Movable nodes are placed along the rank axis by
// the layout and along the cross axis as close to the mean of their direct
// predecessors as separation allows.
func Relayout(ctx context.Context, branch []canvas.Node, edges []canvas.Edge, roots []canvas.Node, opts Options) ([]canvas.Node, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Spacing == (placement.Spacing{}) {
		opts.Spacing = placement.DefaultSpacing()
	}
	if len(branch) == 0 {
		return nil, nil
	}

	levels := Levels(branch, edges, roots)
	maxLevel := -1
	for _, l := range levels {
		maxLevel = max(maxLevel, l)
	}
	isRoot := make(map[string]bool, len(roots))
	for _, r := range roots {
		isRoot[r.ID] = true
	}

	fixed := make(map[string]canvas.Position)
	for _, n := range branch {
		pin := levels[n.ID] < maxLevel
		if opts.FromRoot {
			pin = isRoot[n.ID]
		}
		if pin {
			fixed[n.ID] = n.Position
		}
	}

	lopts := layout.DefaultOptions()
	lopts.Direction = opts.Direction
	lopts.NodeSep = opts.Spacing.Y
	lopts.RankSep = opts.Spacing.X
	lopts.Fixed = fixed
	lopts.Logger = opts.Logger
	res, err := layout.Layout(ctx, branch, edges, lopts)
	if err != nil {
		return nil, err
	}

	out := make([]canvas.Node, len(branch))
	for i, n := range branch {
		if _, ok := fixed[n.ID]; ok {
			out[i] = n
			continue
		}
		out[i] = res.Nodes[i]
	}
	opts.Logger.Debug("branch relayout",
		"nodes", len(branch),
		"pinned", len(fixed),
		"maxLevel", maxLevel,
		"fromRoot", opts.FromRoot)
	return out, nil
}

// RelayoutAround relays out the cluster of nodeID with the cluster's own
// roots. It fails with NOT_FOUND when nodeID is not on the canvas.
func RelayoutAround(ctx context.Context, nodeID string, nodes []canvas.Node, edges []canvas.Edge, opts Options) ([]canvas.Node, error) {
	cluster := Cluster(nodeID, nodes, edges)
	if len(cluster) == 0 {
		return nil, cgerrors.New(cgerrors.ErrCodeNotFound, "node %q not found", nodeID)
	}
	edges = canvas.NewIndex(cluster).ConnectedEdges(edges)
	return Relayout(ctx, cluster, edges, canvas.Roots(cluster, edges), opts)
}

// Cluster returns the nodes connected to nodeID: everything upstream of it,
// then everything downstream of those. Nodes keep their canvas order.
func Cluster(nodeID string, nodes []canvas.Node, edges []canvas.Edge) []canvas.Node {
	in := make(map[string][]string)
	for _, e := range edges {
		in[e.Target] = append(in[e.Target], e.Source)
	}
	up := bfs([]string{nodeID}, in)
	cluster := bfs(up, adjacency(edges, nil))

	member := make(map[string]bool, len(cluster))
	for _, id := range cluster {
		member[id] = true
	}
	var out []canvas.Node
	for _, n := range nodes {
		if member[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// Descendants returns the start nodes and everything reachable from them
// over outgoing edges, in BFS order.
func Descendants(startIDs []string, nodes []canvas.Node, edges []canvas.Edge) []canvas.Node {
	idx := canvas.NewIndex(nodes)
	var out []canvas.Node
	for _, id := range bfs(startIDs, adjacency(edges, nil)) {
		if n, ok := idx.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}

// bfs returns the ids reachable from start (inclusive) in visit order.
func bfs(start []string, next map[string][]string) []string {
	seen := make(map[string]bool)
	var order []string
	queue := slices.Clone(start)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
		queue = append(queue, next[id]...)
	}
	return order
}

// LayoutDescendants stacks the descendants of the start nodes in columns to
// their right, one column per BFS level, spaced by spacing.X. Each column is
// stacked with spacing.Y gaps and centered on the average Y of its nodes'
// direct sources; a bounded pass then pushes down nodes that still overlap
// in the same column. Y is the center of each node, as in package
// placement. It returns the moved nodes in canvas order; the start nodes
// and everything outside their descendants are not touched.
func LayoutDescendants(startIDs []string, all []canvas.Node, edges []canvas.Edge, spacing placement.Spacing) []canvas.Node {
	idx := canvas.NewIndex(all)
	var sources []canvas.Node
	isStart := make(map[string]bool, len(startIDs))
	for _, id := range startIDs {
		if n, ok := idx.Node(id); ok && !isStart[id] {
			sources = append(sources, n)
			isStart[id] = true
		}
	}
	if len(sources) == 0 {
		return nil
	}

	out := adjacency(edges, nil)
	in := make(map[string][]string)
	for _, e := range edges {
		in[e.Target] = append(in[e.Target], e.Source)
	}

	// Levels by BFS from the sources; start nodes stay at level 0.
	level := make(map[string]int)
	var byLevel [][]canvas.Node
	queue := slices.Clone(startIDs)
	for _, id := range startIDs {
		level[id] = 0
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range out[id] {
			if _, seen := level[next]; seen {
				continue
			}
			n, ok := idx.Node(next)
			if !ok {
				continue
			}
			l := level[id] + 1
			level[next] = l
			for len(byLevel) <= l {
				byLevel = append(byLevel, nil)
			}
			byLevel[l] = append(byLevel[l], n)
			queue = append(queue, next)
		}
	}
	if len(byLevel) == 0 {
		return nil
	}

	height := func(n canvas.Node) float64 { return n.Height() }
	avgY := func(nodes []canvas.Node) float64 {
		sum := 0.0
		for _, n := range nodes {
			sum += n.Position.Y
		}
		return sum / float64(len(nodes))
	}
	maxX := sources[0].Position.X
	for _, s := range sources[1:] {
		maxX = max(maxX, s.Position.X)
	}
	sourceY := avgY(sources)

	positions := make(map[string]canvas.Position)
	var columns [][]canvas.Node
	for l := 1; l < len(byLevel); l++ {
		nodes := byLevel[l]
		slices.SortStableFunc(nodes, func(a, b canvas.Node) int { return cmp.Compare(a.Position.Y, b.Position.Y) })
		columns = append(columns, nodes)

		x := maxX + float64(l)*spacing.X
		total := -spacing.Y
		for _, n := range nodes {
			total += height(n) + spacing.Y
		}
		y := sourceY - total/2
		for i, n := range nodes {
			var direct []canvas.Node
			for _, src := range in[n.ID] {
				if s, ok := idx.Node(src); ok {
					direct = append(direct, s)
				}
			}
			if len(direct) > 0 {
				y = avgY(direct) - total/2 + float64(i)*(height(n)+spacing.Y)
			}
			positions[n.ID] = canvas.Position{X: x, Y: y + height(n)/2}
			y += height(n) + spacing.Y
		}
	}

	for _, col := range columns {
		pushDown(col, positions, spacing.Y)
	}

	var moved []canvas.Node
	for _, n := range all {
		if pos, ok := positions[n.ID]; ok && !isStart[n.ID] {
			n.Position = pos
			moved = append(moved, n)
		}
	}
	return moved
}

// pushDown separates overlapping nodes of one column by moving the lower
// one (the later one on ties) below the other.
func pushDown(col []canvas.Node, positions map[string]canvas.Position, clearance float64) {
	for pass := 0; pass < maxOverlapPasses; pass++ {
		changed := false
		for i, a := range col {
			for j, b := range col {
				if i == j {
					continue
				}
				pa, pb := positions[a.ID], positions[b.ID]
				ha, hb := a.Height(), b.Height()
				apart := pa.Y+ha/2 <= pb.Y-hb/2-clearance || pa.Y-ha/2 >= pb.Y+hb/2+clearance
				if apart {
					continue
				}
				if pa.Y > pb.Y || (pa.Y == pb.Y && i > j) {
					pa.Y = pb.Y + hb/2 + clearance + ha/2
					positions[a.ID] = pa
					changed = true
				}
			}
		}
		if !changed {
			return
		}
	}
}
