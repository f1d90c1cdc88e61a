package graph

import (
	"encoding/json"
	"fmt"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/layout"
)

// Layout is the serialized outcome of a layout pass.
type Layout struct {
	CanvasID  string                     `json:"canvasId,omitempty" bson:"canvasId,omitempty"`
	Direction canvas.Direction           `json:"direction" bson:"direction"`
	Positions map[string]canvas.Position `json:"positions" bson:"positions"`
	Ranks     map[string]int             `json:"ranks,omitempty" bson:"ranks,omitempty"`
	BackEdges int                        `json:"backEdges,omitempty" bson:"backEdges,omitempty"`
	Crossings int                        `json:"crossings,omitempty" bson:"crossings,omitempty"`
	Skipped   []string                   `json:"skipped,omitempty" bson:"skipped,omitempty"`
}

// FromResult serializes a layout result. Nodes positioned by a parent are
// not part of a layout and are left out.
func FromResult(canvasID string, dir canvas.Direction, res layout.Result) Layout {
	l := Layout{
		CanvasID:  canvasID,
		Direction: dir,
		Positions: make(map[string]canvas.Position, len(res.Nodes)),
		Ranks:     res.Ranks,
		BackEdges: res.BackEdges,
		Crossings: res.Crossings,
		Skipped:   res.Skipped,
	}
	for _, n := range res.Nodes {
		if n.ParentID == "" {
			l.Positions[n.ID] = n.Position
		}
	}
	return l
}

// Apply returns copies of nodes moved to the layout's positions. Nodes the
// layout does not know keep their position.
func (l Layout) Apply(nodes []canvas.Node) []canvas.Node {
	out := canvas.CloneNodes(nodes)
	for i, n := range out {
		if pos, ok := l.Positions[n.ID]; ok {
			out[i].Position = pos
		}
	}
	return out
}

// Result rebuilds a layout result over nodes and edges.
func (l Layout) Result(nodes []canvas.Node, edges []canvas.Edge) layout.Result {
	return layout.Result{
		Nodes:     l.Apply(nodes),
		Edges:     canvas.CloneEdges(edges),
		Ranks:     l.Ranks,
		BackEdges: l.BackEdges,
		Crossings: l.Crossings,
		Skipped:   l.Skipped,
	}
}

// MarshalLayout encodes a layout as JSON.
func MarshalLayout(l Layout) ([]byte, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	return data, nil
}

// UnmarshalLayout decodes a layout.
func UnmarshalLayout(data []byte) (Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("decode layout: %w", err)
	}
	return l, nil
}
