package canvas

import (
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
)

// Index is an id lookup over a node slice. It preserves the slice order and
// never iterates its map, so results built from it are deterministic.
//
// The zero value is not usable - use NewIndex.
type Index struct {
	nodes []Node
	pos   map[string]int
}

// NewIndex indexes nodes by ID. When ids repeat, the first occurrence wins.
func NewIndex(nodes []Node) *Index {
	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, ok := pos[n.ID]; !ok {
			pos[n.ID] = i
		}
	}
	return &Index{nodes: nodes, pos: pos}
}

// Node returns the node with the given ID.
func (x *Index) Node(id string) (Node, bool) {
	i, ok := x.pos[id]
	if !ok {
		return Node{}, false
	}
	return x.nodes[i], true
}

// Has reports whether a node with the given ID is indexed.
func (x *Index) Has(id string) bool {
	_, ok := x.pos[id]
	return ok
}

// Nodes returns the indexed slice in its original order.
func (x *Index) Nodes() []Node { return x.nodes }

// Len returns the number of indexed nodes.
func (x *Index) Len() int { return len(x.nodes) }

// Absolute resolves the absolute position of n by summing the positions of
// all resolvable ancestors. The second result is false when the parent chain
// is broken (a missing parent) or cyclic; the position returned is then the
// best-effort sum up to the break.
func (x *Index) Absolute(n Node) (Position, bool) {
	pos := n.Position
	ok := true
	visited := map[string]bool{n.ID: true}
	parentID := n.ParentID
	for parentID != "" {
		if visited[parentID] {
			ok = false
			break
		}
		visited[parentID] = true

		parent, found := x.Node(parentID)
		if !found {
			ok = false
			break
		}
		pos = pos.Add(parent.Position)
		parentID = parent.ParentID
	}
	return pos, ok
}

// AbsoluteNodes returns copies of nodes with absolute positions and
// ParentID cleared. The ids of nodes whose parent chain did not resolve are
// reported so callers can log them.
func (x *Index) AbsoluteNodes(nodes []Node) ([]Node, []string) {
	out := make([]Node, len(nodes))
	var unresolved []string
	for i, n := range nodes {
		pos, ok := x.Absolute(n)
		if !ok {
			unresolved = append(unresolved, n.ID)
		}
		n.Position = pos
		n.ParentID = ""
		out[i] = n
	}
	return out, unresolved
}

// Roots returns the nodes with no incoming edge, in node order.
func Roots(nodes []Node, edges []Edge) []Node {
	targets := make(map[string]bool, len(edges))
	for _, e := range edges {
		targets[e.Target] = true
	}
	var roots []Node
	for _, n := range nodes {
		if !targets[n.ID] {
			roots = append(roots, n)
		}
	}
	return roots
}

// Validate checks the uniqueness invariants of a node and edge set: node ids,
// (type, entityId) pairs and edge ids must all be unique. Dangling edges are
// not an error here; use DanglingEdges to find them.
func Validate(nodes []Node, edges []Edge) error {
	ids := make(map[string]bool, len(nodes))
	keys := make(map[Filter]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return cgerrors.New(cgerrors.ErrCodeInvalidInput, "node id must not be empty")
		}
		if ids[n.ID] {
			return cgerrors.New(cgerrors.ErrCodeDuplicateEntity, "duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
		if keys[n.Key()] {
			return cgerrors.New(cgerrors.ErrCodeDuplicateEntity, "duplicate node %s", n.Key())
		}
		keys[n.Key()] = true
	}

	edgeIDs := make(map[string]bool, len(edges))
	for _, e := range edges {
		if edgeIDs[e.ID] {
			return cgerrors.New(cgerrors.ErrCodeDuplicateEdge, "duplicate edge id %q", e.ID)
		}
		edgeIDs[e.ID] = true
	}
	return nil
}

// DanglingEdges returns the edges whose source or target is not in nodes.
func DanglingEdges(nodes []Node, edges []Edge) []Edge {
	x := NewIndex(nodes)
	var out []Edge
	for _, e := range edges {
		if !x.Has(e.Source) || !x.Has(e.Target) {
			out = append(out, e)
		}
	}
	return out
}

// ConnectedEdges filters edges down to those with both endpoints in x.
func (x *Index) ConnectedEdges(edges []Edge) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if x.Has(e.Source) && x.Has(e.Target) {
			out = append(out, e)
		}
	}
	return out
}
