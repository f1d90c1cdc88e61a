package pipeline

import (
	"context"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/cache"
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/observability"
	"github.com/matzehuels/canvasgraph/pkg/render/nodelink"
)

type countingCacheHooks struct {
	observability.NoopCacheHooks
	mu           sync.Mutex
	hits, misses map[string]int
}

func (h *countingCacheHooks) OnCacheHit(_ context.Context, kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits[kind]++
}

func (h *countingCacheHooks) OnCacheMiss(_ context.Context, kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.misses[kind]++
}

func installHooks(t *testing.T) *countingCacheHooks {
	t.Helper()
	h := &countingCacheHooks{hits: map[string]int{}, misses: map[string]int{}}
	observability.SetCacheHooks(h)
	t.Cleanup(observability.Reset)
	return h
}

func newRunner() (*Runner, *cache.MemoryCache) {
	c := cache.NewMemoryCache()
	return NewRunner(c, nil, log.New(io.Discard)), c
}

func node(id string, x, y float64) canvas.Node {
	return canvas.Node{ID: id, Type: canvas.NodeTypeMemo, EntityID: id, Position: canvas.Position{X: x, Y: y}}
}

func chain() graph.Snapshot {
	return graph.Snapshot{
		CanvasID: "c-1",
		Nodes:    []canvas.Node{node("a", 0, 0), node("b", 10, 10), node("c", 20, 20)},
		Edges:    []canvas.Edge{canvas.NewEdge("a", "b"), canvas.NewEdge("b", "c")},
	}
}

func positions(nodes []canvas.Node) map[string]canvas.Position {
	out := make(map[string]canvas.Position, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n.Position
	}
	return out
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"dot", false},
		{"svg", false},
		{"png", false},
		{"pdf", false},
		{"SVG", true},
		{"", true},
	}
	for _, tt := range tests {
		if err := ValidateFormat(tt.format); (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestLayoutCached(t *testing.T) {
	hooks := installHooks(t)
	r, c := newRunner()
	ctx := context.Background()

	first, hit, err := r.LayoutWithCacheInfo(ctx, chain(), layout.DefaultOptions())
	if err != nil || hit {
		t.Fatalf("first layout: hit=%v err=%v", hit, err)
	}
	if c.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", c.Len())
	}

	second, hit, err := r.LayoutWithCacheInfo(ctx, chain(), layout.DefaultOptions())
	if err != nil || !hit {
		t.Fatalf("second layout: hit=%v err=%v", hit, err)
	}
	if !reflect.DeepEqual(positions(first.Nodes), positions(second.Nodes)) {
		t.Errorf("cached positions differ:\n got %v\nwant %v", positions(second.Nodes), positions(first.Nodes))
	}
	if !reflect.DeepEqual(first.Ranks, second.Ranks) {
		t.Errorf("cached ranks differ: %v vs %v", second.Ranks, first.Ranks)
	}
	if hooks.hits["layout"] != 1 || hooks.misses["layout"] != 1 {
		t.Errorf("hooks: hits=%v misses=%v", hooks.hits, hooks.misses)
	}
}

func TestLayoutKey(t *testing.T) {
	r, _ := newRunner()
	ctx := context.Background()
	if _, err := r.Layout(ctx, chain(), layout.DefaultOptions()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*graph.Snapshot, *layout.Options)
		wantHit bool
	}{
		{"moved node", func(s *graph.Snapshot, _ *layout.Options) { s.Nodes[1].Position = canvas.Position{X: 999} }, true},
		{"selection", func(s *graph.Snapshot, _ *layout.Options) { s.Nodes[0].Selected = true }, true},
		{"measured size", func(s *graph.Snapshot, _ *layout.Options) { s.Nodes[1].Measured = &canvas.Size{Width: 50, Height: 50} }, false},
		{"extra edge", func(s *graph.Snapshot, _ *layout.Options) { s.Edges = append(s.Edges, canvas.NewEdge("a", "c")) }, false},
		{"direction", func(_ *graph.Snapshot, o *layout.Options) { o.Direction = canvas.DirectionTB }, false},
		{"pinned node", func(_ *graph.Snapshot, o *layout.Options) { o.Fixed = map[string]canvas.Position{"a": {}} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, opts := chain(), layout.DefaultOptions()
			tt.mutate(&s, &opts)
			_, hit, err := r.LayoutWithCacheInfo(ctx, s, opts)
			if err != nil {
				t.Fatal(err)
			}
			if hit != tt.wantHit {
				t.Errorf("hit = %v, want %v", hit, tt.wantHit)
			}
		})
	}
}

func TestLayoutCacheHitKeepsChildPositions(t *testing.T) {
	r, _ := newRunner()
	ctx := context.Background()
	s := chain()
	child := node("child", 5, 5)
	child.ParentID = "a"
	s.Nodes = append(s.Nodes, child)

	if _, err := r.Layout(ctx, s, layout.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	s.Nodes[3].Position = canvas.Position{X: 40, Y: 60}
	res, hit, err := r.LayoutWithCacheInfo(ctx, s, layout.DefaultOptions())
	if err != nil || !hit {
		t.Fatalf("hit=%v err=%v", hit, err)
	}
	if got := res.Nodes[3].Position; got != (canvas.Position{X: 40, Y: 60}) {
		t.Errorf("child position = %v, want the current one", got)
	}
}

func TestRelayoutCached(t *testing.T) {
	r, _ := newRunner()
	ctx := context.Background()
	req := RelayoutRequest{NodeID: "c", FromRoot: true}

	first, hit, err := r.RelayoutWithCacheInfo(ctx, chain(), req)
	if err != nil || hit {
		t.Fatalf("first relayout: hit=%v err=%v", hit, err)
	}
	second, hit, err := r.RelayoutWithCacheInfo(ctx, chain(), req)
	if err != nil || !hit {
		t.Fatalf("second relayout: hit=%v err=%v", hit, err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached relayout differs:\n got %v\nwant %v", second, first)
	}
	if first[0].Position != (canvas.Position{}) {
		t.Errorf("root moved to %v", first[0].Position)
	}

	moved := chain()
	moved.Nodes[0].Position = canvas.Position{X: 300}
	if _, hit, _ := r.RelayoutWithCacheInfo(ctx, moved, req); hit {
		t.Error("moving the pinned root must change the relayout key")
	}

	if _, err := r.Relayout(ctx, chain(), RelayoutRequest{NodeID: "ghost"}); err == nil {
		t.Error("relayout of unknown node should fail")
	}
}

func TestPlace(t *testing.T) {
	r, _ := newRunner()

	pos, err := r.Place(graph.Snapshot{}, PlaceRequest{})
	if err != nil || pos != (canvas.Position{X: 100, Y: 300}) {
		t.Errorf("empty canvas: %v, %v", pos, err)
	}

	s := graph.Snapshot{Nodes: []canvas.Node{node("a", 0, 0)}}
	pos, err = r.Place(s, PlaceRequest{
		ConnectTo:  []canvas.Filter{{Type: canvas.NodeTypeMemo, EntityID: "a"}},
		AutoLayout: true,
	})
	if err != nil || pos != (canvas.Position{X: 144 + 400, Y: 0}) {
		t.Errorf("connected: %v, %v", pos, err)
	}
}

func TestRenderDOTNotCached(t *testing.T) {
	r, c := newRunner()
	data, hit, err := r.RenderWithCacheInfo(context.Background(), chain(), FormatDOT, nodelink.Options{})
	if err != nil || hit {
		t.Fatalf("hit=%v err=%v", hit, err)
	}
	if !strings.HasPrefix(string(data), "digraph G {") {
		t.Errorf("unexpected DOT: %.50s", data)
	}
	if c.Len() != 0 {
		t.Error("DOT output should not be cached")
	}
	if _, err := r.Render(context.Background(), chain(), "gif", nodelink.Options{}); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestRenderSVGCached(t *testing.T) {
	r, _ := newRunner()
	ctx := context.Background()
	first, hit, err := r.RenderWithCacheInfo(ctx, chain(), FormatSVG, nodelink.Options{})
	if err != nil || hit {
		t.Fatalf("first render: hit=%v err=%v", hit, err)
	}
	second, hit, err := r.RenderWithCacheInfo(ctx, chain(), FormatSVG, nodelink.Options{})
	if err != nil || !hit {
		t.Fatalf("second render: hit=%v err=%v", hit, err)
	}
	if string(first) != string(second) {
		t.Error("cached SVG differs")
	}
}

func TestNullCacheNeverHits(t *testing.T) {
	r := NewRunner(nil, nil, log.New(io.Discard))
	defer r.Close()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, hit, err := r.LayoutWithCacheInfo(ctx, chain(), layout.DefaultOptions()); err != nil || hit {
			t.Fatalf("run %d: hit=%v err=%v", i, hit, err)
		}
	}
}
