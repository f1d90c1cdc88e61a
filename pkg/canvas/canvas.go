package canvas

import (
	"fmt"
	"maps"
	"slices"

	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
)

// Fallback footprint used until the rendering layer reports a measurement.
const (
	DefaultWidth  = 288.0
	DefaultHeight = 320.0
)

// Metadata stores arbitrary key-value pairs attached to nodes and edges.
// It is never inspected by the engine, only copied.
type Metadata map[string]any

// NodeType enumerates the kinds of canvas nodes.
type NodeType string

const (
	NodeTypeDocument      NodeType = "document"
	NodeTypeResource      NodeType = "resource"
	NodeTypeSkill         NodeType = "skill"
	NodeTypeSkillResponse NodeType = "skillResponse"
	NodeTypeCodeArtifact  NodeType = "codeArtifact"
	NodeTypeWebsite       NodeType = "website"
	NodeTypeMemo          NodeType = "memo"
	NodeTypeGroup         NodeType = "group"
	NodeTypeImage         NodeType = "image"
	NodeTypeTool          NodeType = "tool"
	NodeTypeToolResponse  NodeType = "toolResponse"
)

// NodeTypes lists every known node type in a stable order.
var NodeTypes = []NodeType{
	NodeTypeDocument,
	NodeTypeResource,
	NodeTypeSkill,
	NodeTypeSkillResponse,
	NodeTypeCodeArtifact,
	NodeTypeWebsite,
	NodeTypeMemo,
	NodeTypeGroup,
	NodeTypeImage,
	NodeTypeTool,
	NodeTypeToolResponse,
}

// ParseNodeType validates s against the known node types.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if slices.Contains(NodeTypes, t) {
		return t, nil
	}
	return "", cgerrors.New(cgerrors.ErrCodeInvalidNodeType, "unknown node type %q", s)
}

// Direction is the flow direction of a layered layout.
type Direction string

const (
	// DirectionTB flows ranks downward.
	DirectionTB Direction = "TB"
	// DirectionLR flows ranks rightward.
	DirectionLR Direction = "LR"
)

// ParseDirection validates s as a layout direction. The empty string selects
// [DirectionLR], which is what the canvas uses for incremental placement.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionTB:
		return DirectionTB, nil
	case DirectionLR, "":
		return DirectionLR, nil
	}
	return "", cgerrors.New(cgerrors.ErrCodeInvalidDirection, "direction must be TB or LR, got %q", s)
}

// Position is a point on the canvas.
type Position struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// Add returns the component-wise sum of p and o.
func (p Position) Add(o Position) Position { return Position{X: p.X + o.X, Y: p.Y + o.Y} }

// Size is a measured node footprint.
type Size struct {
	Width  float64 `json:"width" bson:"width"`
	Height float64 `json:"height" bson:"height"`
}

// Payload is the typed content of a node. The engine copies it verbatim.
type Payload struct {
	Kind           NodeType `json:"kind,omitempty" bson:"kind,omitempty"`
	Title          string   `json:"title,omitempty" bson:"title,omitempty"`
	ContentPreview string   `json:"contentPreview,omitempty" bson:"contentPreview,omitempty"`
	Metadata       Metadata `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Node is a vertex on the canvas.
//
// Position is top-left anchored and relative to the parent when ParentID is
// set. Measured is nil until the rendering layer reports real dimensions.
type Node struct {
	ID       string   `json:"id" bson:"id"`
	Type     NodeType `json:"type" bson:"type"`
	EntityID string   `json:"entityId" bson:"entityId"`
	Position Position `json:"position" bson:"position"`
	Measured *Size    `json:"measured,omitempty" bson:"measured,omitempty"`
	ParentID string   `json:"parentId,omitempty" bson:"parentId,omitempty"`
	Selected bool     `json:"selected,omitempty" bson:"selected,omitempty"`
	Data     Payload  `json:"data" bson:"data"`
}

// Width returns the measured width, or DefaultWidth if unmeasured.
func (n Node) Width() float64 {
	if n.Measured != nil && n.Measured.Width > 0 {
		return n.Measured.Width
	}
	return DefaultWidth
}

// Height returns the measured height, or DefaultHeight if unmeasured.
func (n Node) Height() float64 {
	if n.Measured != nil && n.Measured.Height > 0 {
		return n.Measured.Height
	}
	return DefaultHeight
}

// Size returns the layout footprint of the node.
func (n Node) Size() Size { return Size{Width: n.Width(), Height: n.Height()} }

// Matches reports whether the node is addressed by f.
func (n Node) Matches(f Filter) bool {
	return n.Type == f.Type && n.EntityID == f.EntityID
}

// Key returns the domain identity of the node.
func (n Node) Key() Filter { return Filter{Type: n.Type, EntityID: n.EntityID} }

// Clone returns a copy that shares no mutable state with n.
func (n Node) Clone() Node {
	if n.Measured != nil {
		m := *n.Measured
		n.Measured = &m
	}
	n.Data.Metadata = maps.Clone(n.Data.Metadata)
	return n
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string   `json:"id" bson:"id"`
	Source string   `json:"source" bson:"source"`
	Target string   `json:"target" bson:"target"`
	Style  Metadata `json:"style,omitempty" bson:"style,omitempty"`
}

// Clone returns a copy that shares no mutable state with e.
func (e Edge) Clone() Edge {
	e.Style = maps.Clone(e.Style)
	return e
}

// EdgeID derives the identifier of the edge source→target.
func EdgeID(source, target string) string {
	return "edge-" + source + "-" + target
}

// NewEdge builds an edge with a derived identifier and the default style.
func NewEdge(source, target string) Edge {
	return Edge{
		ID:     EdgeID(source, target),
		Source: source,
		Target: target,
		Style:  DefaultEdgeStyle(),
	}
}

// DefaultEdgeStyle returns the visual metadata new edges carry.
func DefaultEdgeStyle() Metadata {
	return Metadata{"stroke": "#D0D5DD", "strokeWidth": 1.5, "transition": "stroke 0.2s, stroke-width 0.2s"}
}

// Filter addresses a node by its domain identity.
type Filter struct {
	Type     NodeType `json:"type" validate:"required"`
	EntityID string   `json:"entityId" validate:"required"`
}

// String renders the filter as "type:entityId".
func (f Filter) String() string { return fmt.Sprintf("%s:%s", f.Type, f.EntityID) }

// CloneNodes deep-copies a node slice.
func CloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// CloneEdges deep-copies an edge slice.
func CloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out
}

// FindByFilter returns the first node matching f.
func FindByFilter(nodes []Node, f Filter) (Node, bool) {
	for _, n := range nodes {
		if n.Matches(f) {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs extracts the ID from each node in a slice, preserving order.
func NodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
