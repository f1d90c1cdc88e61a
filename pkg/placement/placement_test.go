package placement

import (
	"fmt"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
)

func testPlanner() *Planner {
	return New(WithLogger(log.New(io.Discard)))
}

func at(id string, x, y float64) canvas.Node {
	return canvas.Node{ID: id, Type: canvas.NodeTypeMemo, EntityID: id, Position: canvas.Position{X: x, Y: y}}
}

func TestLeftmostBottomEmpty(t *testing.T) {
	got := testPlanner().LeftmostBottomPosition(nil)
	want := canvas.Position{X: InitialX, Y: InitialY}
	if got != want {
		t.Errorf("LeftmostBottomPosition([]) = %+v, want %+v", got, want)
	}
}

func TestLeftmostBottom(t *testing.T) {
	tests := []struct {
		name  string
		nodes []canvas.Node
		want  canvas.Position
	}{
		{
			name:  "below single node",
			nodes: []canvas.Node{at("a", 100, 300)},
			// bottom 460 + 30 spacing + 160 half height
			want: canvas.Position{X: 100, Y: 650},
		},
		{
			name:  "gap before first node",
			nodes: []canvas.Node{at("a", 100, 1000)},
			// first top 840 > 300+30+320, gap starts at the initial Y
			want: canvas.Position{X: 100, Y: 460},
		},
		{
			name:  "gap between nodes",
			nodes: []canvas.Node{at("a", 100, 300), at("b", 100, 1300), at("c", 150, 600)},
			// a spans 140..460, c spans 440..760, b spans 1140..1460: first gap is between c and b
			want: canvas.Position{X: 100, Y: 950},
		},
		{
			name:  "other columns ignored",
			nodes: []canvas.Node{at("a", 0, 300), at("b", 800, 800)},
			want:  canvas.Position{X: 0, Y: 650},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testPlanner().LeftmostBottomPosition(tt.nodes); got != tt.want {
				t.Errorf("LeftmostBottomPosition = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRightmostEmptyColumn(t *testing.T) {
	src := at("src", 0, 0)
	got, err := testPlanner().RightmostPosition([]canvas.Node{src}, []canvas.Node{src})
	if err != nil {
		t.Fatalf("RightmostPosition: %v", err)
	}
	want := canvas.Position{X: canvas.DefaultWidth/2 + DefaultSpacingX, Y: 0}
	if got != want {
		t.Errorf("RightmostPosition = %+v, want %+v", got, want)
	}
}

func TestRightmostAverageAndWidth(t *testing.T) {
	a := at("a", 0, 0)
	b := at("b", 100, 200)
	b.Measured = &canvas.Size{Width: 600, Height: 100}
	got, err := testPlanner().RightmostPosition([]canvas.Node{a, b}, []canvas.Node{a, b})
	if err != nil {
		t.Fatalf("RightmostPosition: %v", err)
	}
	want := canvas.Position{X: 100 + 300 + DefaultSpacingX, Y: 100}
	if got != want {
		t.Errorf("RightmostPosition = %+v, want %+v", got, want)
	}
}

func TestRightmostZeroSources(t *testing.T) {
	_, err := testPlanner().RightmostPosition(nil, []canvas.Node{at("a", 0, 0)})
	if !cgerrors.IsContractViolation(err) {
		t.Errorf("err = %v, want contract violation", err)
	}
}

func TestRightmostNoOverlap(t *testing.T) {
	p := testPlanner()
	src := at("src", 0, 0)
	all := []canvas.Node{src}
	var placedNodes []canvas.Node
	for i := range 6 {
		pos, err := p.RightmostPosition([]canvas.Node{src}, all)
		if err != nil {
			t.Fatalf("RightmostPosition: %v", err)
		}
		n := at(fmt.Sprintf("n%d", i), pos.X, pos.Y)
		all = append(all, n)
		placedNodes = append(placedNodes, n)
	}
	for i := range placedNodes {
		for j := i + 1; j < len(placedNodes); j++ {
			a, b := placedNodes[i], placedNodes[j]
			if a.Position.X != b.Position.X {
				t.Fatalf("siblings in different columns: %v vs %v", a.Position.X, b.Position.X)
			}
			if a.Position.Y-a.Height()/2 < b.Position.Y+b.Height()/2 &&
				b.Position.Y-b.Height()/2 < a.Position.Y+a.Height()/2 {
				t.Errorf("%s (y=%v) overlaps %s (y=%v)", a.ID, a.Position.Y, b.ID, b.Position.Y)
			}
		}
	}
}

func TestRightmostScanFindsNearbySlot(t *testing.T) {
	p := testPlanner()
	src := at("src", 0, 0)
	src.Measured = &canvas.Size{Width: 288, Height: 100}
	// A short node sits in the target column just above the source average.
	occupant := at("occ", 544, -200)
	occupant.Measured = &canvas.Size{Width: 288, Height: 40}

	got, err := p.RightmostPosition([]canvas.Node{src}, []canvas.Node{src, occupant})
	if err != nil {
		t.Fatalf("RightmostPosition: %v", err)
	}
	// occ spans -220..-180; a 320-high node centered at 0 clears it by 20 < 30,
	// so the scan moves down in 7.5 steps until the clearance holds.
	if got.Y != 15 {
		t.Errorf("y = %v, want 15", got.Y)
	}
}

func TestRightmostGapFallback(t *testing.T) {
	p := testPlanner()
	src := at("src", 0, 0)
	occupant := at("occ", 544, 0)
	got, err := p.RightmostPosition([]canvas.Node{src}, []canvas.Node{src, occupant})
	if err != nil {
		t.Fatalf("RightmostPosition: %v", err)
	}
	// No slot within the window: the open space above the occupant wins the tie.
	if got.Y != -350 {
		t.Errorf("y = %v, want -350", got.Y)
	}
}

func TestRightmostParentedSource(t *testing.T) {
	group := at("group", 1000, 1000)
	child := at("child", 10, 20)
	child.ParentID = "group"
	got, err := testPlanner().RightmostPosition([]canvas.Node{child}, []canvas.Node{group, child})
	if err != nil {
		t.Fatalf("RightmostPosition: %v", err)
	}
	want := canvas.Position{X: 1010 + 144 + DefaultSpacingX, Y: 1020}
	if got != want {
		t.Errorf("RightmostPosition = %+v, want %+v", got, want)
	}
}

func TestRightmostUnresolvedParent(t *testing.T) {
	orphan := at("orphan", 10, 20)
	orphan.ParentID = "missing"
	got, err := testPlanner().RightmostPosition([]canvas.Node{orphan}, []canvas.Node{orphan})
	if err != nil {
		t.Fatalf("RightmostPosition: %v", err)
	}
	if got.Y != 20 {
		t.Errorf("y = %v, want stored position used", got.Y)
	}
}

func TestLeftmostBottomBrokenParentChain(t *testing.T) {
	group := at("group", 1000, 0)
	group.ParentID = "gone"
	child := at("child", 10, 10)
	child.ParentID = "group"

	got := testPlanner().LeftmostBottomPosition([]canvas.Node{group, child})
	// child resolves to (1010, 10) through group; group itself is taken as absolute
	want := canvas.Position{X: 1000, Y: 360}
	if got != want {
		t.Errorf("LeftmostBottomPosition = %+v, want %+v", got, want)
	}
}

func TestBelowChildren(t *testing.T) {
	p := testPlanner()
	src := at("src", 0, 0)
	child := at("child", 400, 100)
	edges := []canvas.Edge{canvas.NewEdge("src", "child")}

	got, err := p.BelowChildrenPosition([]canvas.Node{src}, []canvas.Node{src, child}, edges)
	if err != nil {
		t.Fatalf("BelowChildrenPosition: %v", err)
	}
	want := canvas.Position{X: 400, Y: 100 + 160 + 30 + 160}
	if got != want {
		t.Errorf("BelowChildrenPosition = %+v, want %+v", got, want)
	}

	got, err = p.BelowChildrenPosition([]canvas.Node{src}, []canvas.Node{src}, nil)
	if err != nil {
		t.Fatalf("BelowChildrenPosition: %v", err)
	}
	if got != (canvas.Position{X: 400, Y: 0}) {
		t.Errorf("BelowChildrenPosition without children = %+v", got)
	}
}

func TestPositionDispatch(t *testing.T) {
	p := testPlanner()
	src := at("src", 0, 0)
	explicit := canvas.Position{X: 7, Y: 8}

	tests := []struct {
		name string
		req  Request
		want canvas.Position
	}{
		{"explicit", Request{Explicit: &explicit, Nodes: []canvas.Node{src}}, explicit},
		{"empty canvas", Request{}, canvas.Position{X: InitialX, Y: InitialY}},
		{"connected", Request{Nodes: []canvas.Node{src}, Sources: []canvas.Node{src}, AutoLayout: true}, canvas.Position{X: 544, Y: 0}},
		{"connected manual", Request{Nodes: []canvas.Node{src}, Sources: []canvas.Node{src}}, canvas.Position{X: 400, Y: 0}},
		{"unconnected", Request{Nodes: []canvas.Node{src}}, canvas.Position{X: 0, Y: 350}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Position(tt.req)
			if err != nil {
				t.Fatalf("Position: %v", err)
			}
			if got != tt.want {
				t.Errorf("Position = %+v, want %+v", got, tt.want)
			}
		})
	}
}
