// Package placement decides where a newly inserted node goes.
//
// Two strategies are provided. [Planner.RightmostPosition] places a node
// that connects to existing sources one column to the right of them, in the
// free slot closest to the sources' average Y. [Planner.LeftmostBottomPosition]
// places an unconnected node in the first free slot of the leftmost column.
//
// Both strategies resolve parent chains to absolute positions first, and
// both treat a node's Y as the center of its vertical span, so two nodes in
// a column are disjoint when their spans y ± height/2 do not intersect.
// Every loop is bounded by the column size or by a fixed multiple of the
// spacing constants.
package placement

import (
	"cmp"
	"math"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
)

// Spacing constants.
const (
	DefaultSpacingX = 400.0
	DefaultSpacingY = 30.0
	InitialX        = 100.0
	InitialY        = 300.0
)

// Spacing separates columns (X) and stacked nodes (Y).
type Spacing struct {
	X float64 `toml:"x" json:"x"`
	Y float64 `toml:"y" json:"y"`
}

// DefaultSpacing returns the canvas spacing.
func DefaultSpacing() Spacing { return Spacing{X: DefaultSpacingX, Y: DefaultSpacingY} }

// Planner computes positions for new nodes.
type Planner struct {
	Spacing     Spacing
	DefaultSize canvas.Size
	Initial     canvas.Position
	Logger      *log.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithSpacing overrides the spacing constants.
func WithSpacing(s Spacing) Option { return func(p *Planner) { p.Spacing = s } }

// WithDefaultSize overrides the footprint assumed for unmeasured nodes.
func WithDefaultSize(s canvas.Size) Option { return func(p *Planner) { p.DefaultSize = s } }

// WithInitial overrides the anchor used on an empty canvas.
func WithInitial(pos canvas.Position) Option { return func(p *Planner) { p.Initial = pos } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.Logger = l
		}
	}
}

// New returns a planner with the canvas defaults.
func New(opts ...Option) *Planner {
	p := &Planner{
		Spacing:     DefaultSpacing(),
		DefaultSize: canvas.Size{Width: canvas.DefaultWidth, Height: canvas.DefaultHeight},
		Initial:     canvas.Position{X: InitialX, Y: InitialY},
		Logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Planner) width(n canvas.Node) float64 {
	if n.Measured != nil && n.Measured.Width > 0 {
		return n.Measured.Width
	}
	return p.DefaultSize.Width
}

func (p *Planner) height(n canvas.Node) float64 {
	if n.Measured != nil && n.Measured.Height > 0 {
		return n.Measured.Height
	}
	return p.DefaultSize.Height
}

// placed is a node resolved to its absolute position.
type placed struct {
	node canvas.Node
	pos  canvas.Position
}

func (p *Planner) top(n placed) float64    { return n.pos.Y - p.height(n.node)/2 }
func (p *Planner) bottom(n placed) float64 { return n.pos.Y + p.height(n.node)/2 }

// absolute resolves nodes against the index. A broken parent chain is
// logged; the offsets of the ancestors that do resolve are still applied and
// the last one found is treated as absolute.
func (p *Planner) absolute(idx *canvas.Index, nodes []canvas.Node) []placed {
	out := make([]placed, len(nodes))
	for i, n := range nodes {
		pos, ok := idx.Absolute(n)
		if !ok {
			p.Logger.Warn("unresolved parent chain", "node", n.ID, "parent", n.ParentID)
		}
		out[i] = placed{node: n, pos: pos}
	}
	return out
}

// column returns the nodes whose absolute X is within half a column of x,
// sorted by Y.
func (p *Planner) column(nodes []placed, x float64) []placed {
	var col []placed
	for _, n := range nodes {
		if math.Abs(n.pos.X-x) < p.Spacing.X/2 {
			col = append(col, n)
		}
	}
	slices.SortStableFunc(col, func(a, b placed) int { return cmp.Compare(a.pos.Y, b.pos.Y) })
	return col
}

func averageY(nodes []placed) float64 {
	sum := 0.0
	for _, n := range nodes {
		sum += n.pos.Y
	}
	return sum / float64(len(nodes))
}

// RightmostPosition places a node connected to sources one column to the
// right of the rightmost source. Calling it without sources is a contract
// violation.
func (p *Planner) RightmostPosition(sources, all []canvas.Node) (canvas.Position, error) {
	if len(sources) == 0 {
		p.Logger.Error("rightmost position requested without sources")
		return canvas.Position{}, cgerrors.New(cgerrors.ErrCodeContractViolation, "rightmost position needs at least one source node")
	}
	idx := canvas.NewIndex(all)
	srcs := p.absolute(idx, sources)

	rightmost := math.Inf(-1)
	for _, s := range srcs {
		rightmost = max(rightmost, s.pos.X+p.width(s.node)/2)
	}
	targetX := rightmost + p.Spacing.X
	avgY := averageY(srcs)

	col := p.column(p.absolute(idx, all), targetX)
	if len(col) == 0 {
		return canvas.Position{X: targetX, Y: avgY}, nil
	}

	if y, ok := p.scan(col, avgY); ok {
		return canvas.Position{X: targetX, Y: y}, nil
	}
	return canvas.Position{X: targetX, Y: p.bestGap(col, avgY)}, nil
}

// scan probes Y candidates outward from center in steps of Spacing.Y/4,
// within max(3*Spacing.Y, height of the first column node), and returns the
// first one whose span clears every column node by Spacing.Y.
func (p *Planner) scan(col []placed, center float64) (float64, bool) {
	clearance := p.Spacing.Y
	half := p.DefaultSize.Height / 2
	window := max(3*clearance, p.height(col[0].node))
	step := clearance / 4
	if step <= 0 {
		return 0, false
	}

	free := func(y float64) bool {
		for _, n := range col {
			if !(y+half < p.top(n)-clearance || y-half > p.bottom(n)+clearance) {
				return false
			}
		}
		return true
	}
	if free(center) {
		return center, true
	}
	for k := 1; float64(k)*step <= window; k++ {
		d := float64(k) * step
		if free(center - d) {
			return center - d, true
		}
		if free(center + d) {
			return center + d, true
		}
	}
	return 0, false
}

// bestGap picks the free slot of the column closest to center. Slots between
// consecutive nodes must hold a default-height node plus spacing; the space
// above the first and below the last node is open-ended.
func (p *Planner) bestGap(col []placed, center float64) float64 {
	clearance := p.Spacing.Y
	h := p.DefaultSize.Height

	candidates := []float64{p.top(col[0]) - clearance - h/2}
	for i := 0; i+1 < len(col); i++ {
		start := p.bottom(col[i]) + clearance
		end := p.top(col[i+1]) - clearance
		if end-start >= clearance+h {
			candidates = append(candidates, (start+end)/2)
		}
	}
	candidates = append(candidates, p.bottom(col[len(col)-1])+clearance+h/2)

	best, bestDist := candidates[0], math.Inf(1)
	for _, y := range candidates {
		if d := math.Abs(y - center); d < bestDist {
			best, bestDist = y, d
		}
	}
	return best
}

// LeftmostBottomPosition places an unconnected node in the first free slot
// of the leftmost column. An empty canvas yields the initial anchor.
func (p *Planner) LeftmostBottomPosition(all []canvas.Node) canvas.Position {
	if len(all) == 0 {
		return p.Initial
	}
	nodes := p.absolute(canvas.NewIndex(all), all)
	leftmost := math.Inf(1)
	for _, n := range nodes {
		leftmost = min(leftmost, n.pos.X)
	}
	col := p.column(nodes, leftmost)

	clearance := p.Spacing.Y
	h := p.DefaultSize.Height

	type gap struct{ start, end float64 }
	var gaps []gap
	if firstTop := p.top(col[0]); firstTop > p.Initial.Y+clearance+h {
		gaps = append(gaps, gap{p.Initial.Y, firstTop - clearance})
	}
	for i := 0; i+1 < len(col); i++ {
		bottom, nextTop := p.bottom(col[i]), p.top(col[i+1])
		if nextTop-bottom >= clearance+h {
			gaps = append(gaps, gap{bottom + clearance, nextTop - clearance})
		}
	}
	lastBottom := p.bottom(col[len(col)-1])
	gaps = append(gaps, gap{lastBottom + clearance, lastBottom + clearance + h})

	// The gap below the last node always fits.
	for _, g := range gaps {
		if g.end-g.start >= h {
			return canvas.Position{X: leftmost, Y: g.start + h/2}
		}
	}
	return canvas.Position{X: leftmost, Y: lastBottom + clearance + h/2}
}

// BelowChildrenPosition is used when auto-layout is off: the node goes one
// column right of the sources, below the lowest existing child of any
// source, or at the sources' average Y when they have no children.
func (p *Planner) BelowChildrenPosition(sources, all []canvas.Node, edges []canvas.Edge) (canvas.Position, error) {
	if len(sources) == 0 {
		return canvas.Position{}, cgerrors.New(cgerrors.ErrCodeContractViolation, "below-children position needs at least one source node")
	}
	idx := canvas.NewIndex(all)
	srcs := p.absolute(idx, sources)

	rightmost := math.Inf(-1)
	isSource := make(map[string]bool, len(sources))
	for _, s := range srcs {
		rightmost = max(rightmost, s.pos.X)
		isSource[s.node.ID] = true
	}
	targetX := rightmost + p.Spacing.X

	lowest, found := math.Inf(-1), false
	for _, e := range edges {
		if !isSource[e.Source] {
			continue
		}
		child, ok := idx.Node(e.Target)
		if !ok {
			continue
		}
		c := p.absolute(idx, []canvas.Node{child})[0]
		lowest, found = max(lowest, p.bottom(c)), true
	}
	if !found {
		return canvas.Position{X: targetX, Y: averageY(srcs)}, nil
	}
	return canvas.Position{X: targetX, Y: lowest + p.Spacing.Y + p.DefaultSize.Height/2}, nil
}

// Request describes a node about to be inserted.
type Request struct {
	Nodes   []canvas.Node
	Edges   []canvas.Edge
	Sources []canvas.Node

	// Explicit, when set, wins over every strategy.
	Explicit *canvas.Position

	// AutoLayout selects RightmostPosition over BelowChildrenPosition for
	// connected nodes.
	AutoLayout bool
}

// Position dispatches a request to the matching strategy.
func (p *Planner) Position(req Request) (canvas.Position, error) {
	switch {
	case req.Explicit != nil:
		return *req.Explicit, nil
	case len(req.Nodes) == 0:
		return p.Initial, nil
	case len(req.Sources) > 0 && req.AutoLayout:
		return p.RightmostPosition(req.Sources, req.Nodes)
	case len(req.Sources) > 0:
		return p.BelowChildrenPosition(req.Sources, req.Nodes, req.Edges)
	default:
		return p.LeftmostBottomPosition(req.Nodes), nil
	}
}
