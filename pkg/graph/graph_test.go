package graph

import (
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/mirror"
)

func sampleDocument() *document.Document {
	nodes := []canvas.Node{
		{ID: "g", Type: canvas.NodeTypeGroup, EntityID: "grp", Position: canvas.Position{X: 10, Y: 10}},
		{
			ID: "a", Type: canvas.NodeTypeDocument, EntityID: "d1",
			Position: canvas.Position{X: 20, Y: 40}, ParentID: "g",
			Measured: &canvas.Size{Width: 200, Height: 90},
			Data:     canvas.Payload{Title: "Notes", Metadata: canvas.Metadata{"status": "finish"}},
		},
		{ID: "b", Type: canvas.NodeTypeSkillResponse, EntityID: "r1", Position: canvas.Position{X: 500.5, Y: -3}, Selected: true},
	}
	edges := []canvas.Edge{canvas.NewEdge("a", "b")}
	return document.New("c-1", document.WithLogger(log.New(io.Discard)), document.WithState(nodes, edges))
}

func TestRoundTrip(t *testing.T) {
	doc := sampleDocument()
	m := mirror.Bind(doc)
	defer m.Close()

	path := filepath.Join(t.TempDir(), "canvas.json")
	if err := WriteFile(FromMirror(m), path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	snap, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	fresh, err := Hydrate(snap, document.WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	if fresh.CanvasID() != "c-1" {
		t.Errorf("CanvasID = %q, want c-1", fresh.CanvasID())
	}
	if !reflect.DeepEqual(fresh.Nodes(), doc.Nodes()) {
		t.Errorf("nodes differ after round trip:\n got %+v\nwant %+v", fresh.Nodes(), doc.Nodes())
	}
	if !reflect.DeepEqual(fresh.Edges(), doc.Edges()) {
		t.Errorf("edges differ after round trip:\n got %+v\nwant %+v", fresh.Edges(), doc.Edges())
	}
}

func TestPositionsStayRelative(t *testing.T) {
	data, err := Marshal(FromDocument(sampleDocument()))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"parentId": "g"`, `"x": 20`, `"entityId": "d1"`, `"canvasId": "c-1"`} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %s", want)
		}
	}
	if strings.Contains(s, `"x": 30`) {
		t.Error("child position was resolved to absolute")
	}
}

func TestMarshalEmpty(t *testing.T) {
	data, err := Marshal(Snapshot{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"nodes": []`) || !strings.Contains(string(data), `"edges": []`) {
		t.Errorf("empty sequences should encode as arrays, got %s", data)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		code cgerrors.Code
	}{
		{"malformed", `{"nodes": [`, cgerrors.ErrCodeInvalidInput},
		{"duplicate id", `{"nodes": [{"id": "a", "type": "memo", "entityId": "m1"}, {"id": "a", "type": "memo", "entityId": "m2"}]}`, cgerrors.ErrCodeDuplicateEntity},
		{"duplicate entity", `{"nodes": [{"id": "a", "type": "memo", "entityId": "m1"}, {"id": "b", "type": "memo", "entityId": "m1"}]}`, cgerrors.ErrCodeDuplicateEntity},
		{"duplicate edge", `{"edges": [{"id": "e", "source": "a", "target": "b"}, {"id": "e", "source": "a", "target": "b"}]}`, cgerrors.ErrCodeDuplicateEdge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if got := cgerrors.GetCode(err); got != tt.code {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.code, err)
			}
		})
	}
}

func TestUnmarshalKeepsDanglingEdges(t *testing.T) {
	s, err := Unmarshal([]byte(`{"nodes": [{"id": "a", "type": "memo", "entityId": "m1"}], "edges": [{"id": "e", "source": "a", "target": "gone"}]}`))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(s.Edges) != 1 {
		t.Errorf("edges = %d, want 1", len(s.Edges))
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	nodes := []canvas.Node{
		{ID: "a", Type: canvas.NodeTypeMemo, EntityID: "m1", Position: canvas.Position{X: 50, Y: 50}},
		{ID: "b", Type: canvas.NodeTypeMemo, EntityID: "m2", Position: canvas.Position{X: 418, Y: 50}},
	}
	res := layout.Result{Nodes: nodes, Ranks: map[string]int{"a": 0, "b": 1}, Crossings: 0, Skipped: []string{"e-x"}}

	data, err := MarshalLayout(FromResult("c-1", canvas.DirectionLR, res))
	if err != nil {
		t.Fatalf("MarshalLayout: %v", err)
	}
	l, err := UnmarshalLayout(data)
	if err != nil {
		t.Fatalf("UnmarshalLayout: %v", err)
	}

	stale := canvas.CloneNodes(nodes)
	stale[0].Position, stale[1].Position = canvas.Position{}, canvas.Position{}
	stale = append(stale, canvas.Node{ID: "new", Position: canvas.Position{X: 1, Y: 2}})

	got := l.Result(stale, nil)
	want := []canvas.Position{{X: 50, Y: 50}, {X: 418, Y: 50}, {X: 1, Y: 2}}
	for i, n := range got.Nodes {
		if n.Position != want[i] {
			t.Errorf("node %s at %v, want %v", n.ID, n.Position, want[i])
		}
	}
	if got.Ranks["b"] != 1 || len(got.Skipped) != 1 {
		t.Errorf("metadata lost: ranks=%v skipped=%v", got.Ranks, got.Skipped)
	}
	if stale[0].Position != (canvas.Position{}) {
		t.Error("Apply must not modify its input")
	}
}
