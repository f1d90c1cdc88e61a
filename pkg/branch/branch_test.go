package branch

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/placement"
)

func at(id string, x, y float64) canvas.Node {
	return canvas.Node{ID: id, Type: canvas.NodeTypeMemo, EntityID: id, Position: canvas.Position{X: x, Y: y}}
}

func edges(pairs ...string) []canvas.Edge {
	var out []canvas.Edge
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, canvas.NewEdge(pairs[i], pairs[i+1]))
	}
	return out
}

func testOptions(fromRoot bool) Options {
	opts := DefaultOptions()
	opts.FromRoot = fromRoot
	opts.Logger = log.New(io.Discard)
	return opts
}

func TestLevels(t *testing.T) {
	branch := []canvas.Node{at("r", 0, 0), at("a", 0, 0), at("b", 0, 0), at("lost", 0, 0)}
	es := edges("r", "a", "a", "b", "r", "b", "outside", "lost")
	got := Levels(branch, es, []canvas.Node{at("r", 0, 0)})
	want := map[string]int{"r": 0, "a": 1, "b": 1, "lost": -1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Levels = %v, want %v", got, want)
	}
}

func TestRelayoutDeepestRankOnly(t *testing.T) {
	branch := []canvas.Node{at("r", 0, 0), at("a", 400, 0), at("c1", 900, 900), at("c2", 5, 5)}
	es := edges("r", "a", "a", "c1", "a", "c2")

	got, err := Relayout(context.Background(), branch, es, branch[:1], testOptions(false))
	if err != nil {
		t.Fatalf("Relayout: %v", err)
	}
	if !reflect.DeepEqual(got[0], branch[0]) || !reflect.DeepEqual(got[1], branch[1]) {
		t.Errorf("pinned nodes moved: %+v %+v", got[0].Position, got[1].Position)
	}

	c1, c2 := got[2].Position, got[3].Position
	wantX := 400 + canvas.DefaultWidth + placement.DefaultSpacingX
	if c1.X != wantX || c2.X != wantX {
		t.Errorf("deepest rank x = %v, %v, want %v", c1.X, c2.X, wantX)
	}
	if c1.Y+canvas.DefaultHeight > c2.Y && c2.Y+canvas.DefaultHeight > c1.Y {
		t.Errorf("siblings overlap: %v vs %v", c1.Y, c2.Y)
	}
	// The siblings straddle their source.
	mid := (c1.Y + c2.Y + canvas.DefaultHeight) / 2
	if want := 0 + canvas.DefaultHeight/2; mid != want {
		t.Errorf("sibling midpoint = %v, want %v", mid, want)
	}
}

func TestRelayoutFromRootPinsRoots(t *testing.T) {
	branch := []canvas.Node{at("r", 12.5, -40), at("a", 3000, 3000), at("b", -1, -1)}
	es := edges("r", "a", "a", "b")

	got, err := Relayout(context.Background(), branch, es, branch[:1], testOptions(true))
	if err != nil {
		t.Fatalf("Relayout: %v", err)
	}
	if got[0].Position != branch[0].Position {
		t.Errorf("root moved to %+v", got[0].Position)
	}
	if !(got[0].Position.X < got[1].Position.X && got[1].Position.X < got[2].Position.X) {
		t.Errorf("ranks not left to right: %v %v %v", got[0].Position.X, got[1].Position.X, got[2].Position.X)
	}
	if got[1].Position.Y != -40 || got[2].Position.Y != -40 {
		t.Errorf("chain should align with the root, got %v %v", got[1].Position.Y, got[2].Position.Y)
	}
}

func TestRelayoutEmpty(t *testing.T) {
	got, err := Relayout(context.Background(), nil, nil, nil, testOptions(false))
	if err != nil || got != nil {
		t.Errorf("Relayout(empty) = %v, %v", got, err)
	}
}

func TestRelayoutAround(t *testing.T) {
	nodes := []canvas.Node{at("r", 0, 0), at("a", 700, 900), at("other", 5, 5)}
	es := edges("r", "a")

	out, err := RelayoutAround(context.Background(), "a", nodes, es, testOptions(true))
	if err != nil {
		t.Fatalf("RelayoutAround: %v", err)
	}
	if len(out) != 2 || out[0].ID != "r" || out[1].ID != "a" {
		t.Fatalf("RelayoutAround returned %v, want the r-a cluster", canvas.NodeIDs(out))
	}
	if out[0].Position != nodes[0].Position {
		t.Errorf("root moved to %v", out[0].Position)
	}

	_, err = RelayoutAround(context.Background(), "ghost", nodes, es, testOptions(false))
	if !cgerrors.Is(err, cgerrors.ErrCodeNotFound) {
		t.Errorf("unknown node: err = %v, want NOT_FOUND", err)
	}
}

func TestCluster(t *testing.T) {
	nodes := []canvas.Node{at("x", 0, 0), at("r", 0, 0), at("a", 0, 0), at("b", 0, 0), at("sib", 0, 0), at("other", 0, 0)}
	es := edges("r", "a", "a", "b", "r", "sib", "x", "other")
	got := canvas.NodeIDs(Cluster("a", nodes, es))
	want := []string{"r", "a", "b", "sib"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Cluster = %v, want %v", got, want)
	}
}

func TestDescendants(t *testing.T) {
	nodes := []canvas.Node{at("r", 0, 0), at("a", 0, 0), at("b", 0, 0), at("c", 0, 0)}
	es := edges("r", "a", "r", "b", "a", "c", "c", "r")
	got := canvas.NodeIDs(Descendants([]string{"a"}, nodes, es))
	want := []string{"a", "c", "r", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Descendants = %v, want %v", got, want)
	}
}

func TestLayoutDescendants(t *testing.T) {
	src := at("src", 100, 0)
	c1 := at("c1", 0, 50)
	c2 := at("c2", 0, 10)
	gc := at("gc", 0, 0)
	untouched := at("free", 7, 7)
	all := []canvas.Node{src, c1, c2, gc, untouched}
	es := edges("src", "c1", "src", "c2", "c1", "gc")

	moved := LayoutDescendants([]string{"src"}, all, es, placement.DefaultSpacing())
	got := make(map[string]canvas.Position)
	for _, n := range moved {
		got[n.ID] = n.Position
	}
	if len(got) != 3 {
		t.Fatalf("moved %v, want c1, c2, gc", canvas.NodeIDs(moved))
	}
	if _, ok := got["free"]; ok {
		t.Error("unrelated node moved")
	}

	// Level 1 holds c2 (lower Y first) then c1, stacked around src.Y.
	total := 2*canvas.DefaultHeight + placement.DefaultSpacingY
	wantC2 := canvas.Position{X: 500, Y: -total/2 + canvas.DefaultHeight/2}
	wantC1 := canvas.Position{X: 500, Y: wantC2.Y + canvas.DefaultHeight + placement.DefaultSpacingY}
	if got["c2"] != wantC2 || got["c1"] != wantC1 {
		t.Errorf("level 1 = c2 %+v, c1 %+v, want %+v, %+v", got["c2"], got["c1"], wantC2, wantC1)
	}
	// gc aligns with its direct source c1 as it sits in the input.
	if want := (canvas.Position{X: 900, Y: 50}); got["gc"] != want {
		t.Errorf("gc = %+v, want %+v", got["gc"], want)
	}
}

func TestLayoutDescendantsPushDown(t *testing.T) {
	a := at("a", 0, 0)
	b := at("b", 0, -350)
	x := at("x", 0, 0)
	y := at("y", 0, 0)
	all := []canvas.Node{a, b, x, y}
	// Aligning with their own sources lands x and y on the same Y.
	es := edges("a", "x", "b", "y")

	moved := LayoutDescendants([]string{"a", "b"}, all, es, placement.DefaultSpacing())
	if len(moved) != 2 {
		t.Fatalf("moved = %v", canvas.NodeIDs(moved))
	}
	p, q := moved[0].Position, moved[1].Position
	if p.X != q.X {
		t.Fatalf("not in one column: %v %v", p.X, q.X)
	}
	top, bottom := p, q
	if top.Y > bottom.Y {
		top, bottom = bottom, top
	}
	if bottom.Y-top.Y < canvas.DefaultHeight+placement.DefaultSpacingY {
		t.Errorf("nodes still overlap: %v vs %v", top.Y, bottom.Y)
	}
}

func TestLayoutDescendantsNoTargets(t *testing.T) {
	if moved := LayoutDescendants([]string{"a"}, []canvas.Node{at("a", 0, 0)}, nil, placement.DefaultSpacing()); moved != nil {
		t.Errorf("moved = %v, want nil", moved)
	}
}
