package layout

import (
	"context"
	"math"
	"time"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/observability"
)

// Result is the outcome of a layout pass.
type Result struct {
	// Nodes are copies of the input nodes, in input order, with new
	// top-left positions. Nodes positioned by a parent are unchanged.
	Nodes []canvas.Node
	Edges []canvas.Edge

	// Ranks maps every laid-out node to its rank.
	Ranks map[string]int

	// BackEdges is the number of edges ignored to break cycles.
	BackEdges int
	// Crossings is the number of edge crossings of the chosen ordering.
	Crossings int
	// Skipped lists edges ignored because an endpoint is missing.
	Skipped []string
}

// Layout positions nodes with a layered layout. Data-quality problems
// (dangling edges, cycles, missing sizes) never fail the call; only invalid
// options do.
func Layout(ctx context.Context, nodes []canvas.Node, edges []canvas.Edge, opts Options) (res Result, err error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return Result{}, err
	}
	kind := "full"
	if len(opts.Fixed) > 0 {
		kind = "fixed"
	}
	start := time.Now()
	observability.Layout().OnLayoutStart(ctx, kind, len(nodes))
	defer func() {
		observability.Layout().OnLayoutComplete(ctx, kind, time.Since(start), err)
	}()

	g, skipped := buildGraph(nodes, edges, &opts)
	if len(skipped) > 0 {
		opts.Logger.Warn("skipping dangling edges", "count", len(skipped), "edges", skipped)
	}
	back := breakCycles(g)
	if back > 0 {
		opts.Logger.Warn("ignoring back-edges to break cycles", "count", back)
		observability.Layout().OnCycleBroken(ctx, back)
	}
	assignRanks(g)
	l := subdivide(g)
	crossings := order(l, opts.Iterations)
	c := assignCoordinates(g, l.layers, &opts)

	ax := axes{lr: opts.Direction == canvas.DirectionLR}
	positions := make([]canvas.Position, g.real)
	for u := range g.real {
		if g.fixed[u] {
			positions[u] = g.pos[u]
			continue
		}
		positions[u] = ax.topLeft(c.main[u], c.cross[u], g.size[u])
	}
	if len(opts.Fixed) == 0 {
		normalize(positions, opts.MarginX, opts.MarginY)
	}

	res = Result{
		Nodes:     canvas.CloneNodes(nodes),
		Edges:     canvas.CloneEdges(edges),
		Ranks:     make(map[string]int, g.real),
		BackEdges: back,
		Crossings: crossings,
		Skipped:   skipped,
	}
	for i := range res.Nodes {
		u, ok := g.index[res.Nodes[i].ID]
		if !ok {
			continue
		}
		res.Nodes[i].Position = positions[u]
		res.Ranks[g.ids[u]] = g.rank[u]
	}
	opts.Logger.Debug("layout complete",
		"nodes", g.real,
		"ranks", g.maxRank()+1,
		"crossings", crossings,
		"duration", time.Since(start))
	return res, nil
}

// normalize translates positions so the smallest top-left coordinates equal
// the margins.
func normalize(positions []canvas.Position, marginX, marginY float64) {
	if len(positions) == 0 {
		return
	}
	minX, minY := math.Inf(1), math.Inf(1)
	for _, p := range positions {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
	}
	dx, dy := marginX-minX, marginY-minY
	for i := range positions {
		positions[i].X += dx
		positions[i].Y += dy
	}
}
