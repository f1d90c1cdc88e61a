package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/branch"
	"github.com/matzehuels/canvasgraph/pkg/cache"
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/observability"
	"github.com/matzehuels/canvasgraph/pkg/placement"
	"github.com/matzehuels/canvasgraph/pkg/render/nodelink"
)

// Cache writes are retried this often when the backend is unreachable.
const (
	setAttempts = 3
	setDelay    = 50 * time.Millisecond
)

// Runner executes pipeline stages with caching. It holds no per-canvas
// state and is safe for concurrent use.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching and a nil keyer
// selects the default keyer.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// LayoutWithCacheInfo runs a full layout and reports whether it came from
// the cache.
func (r *Runner) LayoutWithCacheInfo(ctx context.Context, s graph.Snapshot, opts layout.Options) (layout.Result, bool, error) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return layout.Result{}, false, err
	}

	key, err := r.layoutKey(s, opts)
	if err != nil {
		return layout.Result{}, false, err
	}
	if l, ok := r.lookup(ctx, key, "layout"); ok {
		return l.Result(s.Nodes, s.Edges), true, nil
	}

	start := time.Now()
	res, err := layout.Layout(ctx, s.Nodes, s.Edges, opts)
	if err != nil {
		return layout.Result{}, false, err
	}
	r.Logger.Debug("computed layout",
		"canvas", s.CanvasID,
		"nodes", len(s.Nodes),
		"crossings", res.Crossings,
		"duration", time.Since(start))

	r.store(ctx, key, "layout", graph.FromResult(s.CanvasID, opts.Direction, res), cache.TTLLayout)
	return res, false, nil
}

// Layout runs a full layout, discarding the cache info.
func (r *Runner) Layout(ctx context.Context, s graph.Snapshot, opts layout.Options) (layout.Result, error) {
	res, _, err := r.LayoutWithCacheInfo(ctx, s, opts)
	return res, err
}

func (r *Runner) layoutKey(s graph.Snapshot, opts layout.Options) (string, error) {
	h, err := structureHash(s, false)
	if err != nil {
		return "", err
	}
	keyOpts := cache.LayoutKeyOpts{
		Direction:     string(opts.Direction),
		NodeSep:       opts.NodeSep,
		RankSep:       opts.RankSep,
		MarginX:       opts.MarginX,
		MarginY:       opts.MarginY,
		DefaultWidth:  opts.DefaultSize.Width,
		DefaultHeight: opts.DefaultSize.Height,
		Iterations:    opts.Iterations,
	}
	if len(opts.Fixed) > 0 {
		if keyOpts.FixedHash, err = cache.HashJSON(opts.Fixed); err != nil {
			return "", err
		}
	}
	return r.Keyer.LayoutKey(h, keyOpts), nil
}

// RelayoutWithCacheInfo relays out the branch around req.NodeID and returns
// the branch nodes with their new positions.
func (r *Runner) RelayoutWithCacheInfo(ctx context.Context, s graph.Snapshot, req RelayoutRequest) ([]canvas.Node, bool, error) {
	opts := branch.DefaultOptions()
	opts.FromRoot = req.FromRoot
	opts.Logger = r.Logger
	if req.Direction != "" {
		opts.Direction = req.Direction
	}
	if req.Spacing != (placement.Spacing{}) {
		opts.Spacing = req.Spacing
	}

	h, err := structureHash(s, true)
	if err != nil {
		return nil, false, err
	}
	key := r.Keyer.RelayoutKey(h, cache.RelayoutKeyOpts{
		NodeID:    req.NodeID,
		FromRoot:  opts.FromRoot,
		Direction: string(opts.Direction),
		SpacingX:  opts.Spacing.X,
		SpacingY:  opts.Spacing.Y,
	})
	if l, ok := r.lookup(ctx, key, "relayout"); ok {
		return l.Apply(branch.Cluster(req.NodeID, s.Nodes, s.Edges)), true, nil
	}

	out, err := branch.RelayoutAround(ctx, req.NodeID, s.Nodes, s.Edges, opts)
	if err != nil {
		return nil, false, err
	}
	l := graph.Layout{CanvasID: s.CanvasID, Direction: opts.Direction, Positions: make(map[string]canvas.Position, len(out))}
	for _, n := range out {
		l.Positions[n.ID] = n.Position
	}
	r.store(ctx, key, "relayout", l, cache.TTLRelayout)
	return out, false, nil
}

// Relayout is RelayoutWithCacheInfo without the cache info.
func (r *Runner) Relayout(ctx context.Context, s graph.Snapshot, req RelayoutRequest) ([]canvas.Node, error) {
	out, _, err := r.RelayoutWithCacheInfo(ctx, s, req)
	return out, err
}

// Place computes the position of a node about to be added. Placement reads
// every position on the canvas, so it is not cached.
func (r *Runner) Place(s graph.Snapshot, req PlaceRequest) (canvas.Position, error) {
	opts := []placement.Option{placement.WithLogger(r.Logger)}
	if req.Spacing != (placement.Spacing{}) {
		opts = append(opts, placement.WithSpacing(req.Spacing))
	}
	var sources []canvas.Node
	for _, f := range req.ConnectTo {
		if n, ok := canvas.FindByFilter(s.Nodes, f); ok {
			sources = append(sources, n)
		}
	}
	return placement.New(opts...).Position(placement.Request{
		Nodes:      s.Nodes,
		Edges:      s.Edges,
		Sources:    sources,
		Explicit:   req.Explicit,
		AutoLayout: req.AutoLayout,
	})
}

// RenderWithCacheInfo renders the snapshot at its current positions.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, s graph.Snapshot, format string, opts nodelink.Options) ([]byte, bool, error) {
	if err := ValidateFormat(format); err != nil {
		return nil, false, err
	}
	dot := nodelink.ToDOT(s, opts)
	if format == FormatDOT {
		return []byte(dot), false, nil
	}

	key := r.Keyer.RenderKey(cache.Hash([]byte(dot)), cache.RenderKeyOpts{Format: format, Detailed: opts.Detailed})
	if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "render")
		return data, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, "render")

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatSVG:
		data, err = nodelink.RenderSVG(dot)
	case FormatPNG:
		data, err = nodelink.RenderPNG(dot, 2)
	case FormatPDF:
		data, err = nodelink.RenderPDF(dot)
	}
	if err != nil {
		return nil, false, fmt.Errorf("render %s: %w", format, err)
	}
	r.set(ctx, key, "render", data, cache.TTLRender)
	return data, false, nil
}

// Render renders the snapshot, discarding the cache info.
func (r *Runner) Render(ctx context.Context, s graph.Snapshot, format string, opts nodelink.Options) ([]byte, error) {
	data, _, err := r.RenderWithCacheInfo(ctx, s, format, opts)
	return data, err
}

// Close releases the cache.
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) lookup(ctx context.Context, key, kind string) (graph.Layout, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "kind", kind, "error", err)
	}
	if err == nil && hit {
		if l, err := graph.UnmarshalLayout(data); err == nil {
			observability.Cache().OnCacheHit(ctx, kind)
			return l, true
		}
		// Undecodable entries fall through to recompute.
	}
	observability.Cache().OnCacheMiss(ctx, kind)
	return graph.Layout{}, false
}

func (r *Runner) store(ctx context.Context, key, kind string, l graph.Layout, ttl time.Duration) {
	data, err := graph.MarshalLayout(l)
	if err != nil {
		r.Logger.Warn("encode cache entry", "kind", kind, "error", err)
		return
	}
	r.set(ctx, key, kind, data, ttl)
}

func (r *Runner) set(ctx context.Context, key, kind string, data []byte, ttl time.Duration) {
	err := cache.RetryWithBackoff(ctx, setAttempts, setDelay, func() error {
		return r.Cache.Set(ctx, key, data, ttl)
	})
	if err != nil {
		r.Logger.Warn("cache write failed", "kind", kind, "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, kind, len(data))
}
