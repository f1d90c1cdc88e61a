package document

import (
	"fmt"
	"slices"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
)

// Tx stages mutations for a single transaction. It is only valid inside the
// callback passed to [Document.Transact].
type Tx struct {
	doc    *Document
	origin string
	remote bool
	closed bool

	nodes   []canvas.Node
	edges   []canvas.Edge
	nodeOps []NodeOp
	edgeOps []EdgeOp
}

func (d *Document) begin(origin string, remote bool) *Tx {
	return &Tx{
		doc:    d,
		origin: origin,
		remote: remote,
		nodes:  slices.Clone(d.nodes),
		edges:  slices.Clone(d.edges),
	}
}

func (tx *Tx) check(op string) error {
	if tx.closed {
		tx.doc.logger.Error("mutation outside transaction", "op", op)
		return cgerrors.New(cgerrors.ErrCodeContractViolation, "%s called outside a transaction", op)
	}
	return nil
}

// Origin returns the client that produced this transaction.
func (tx *Tx) Origin() string { return tx.origin }

// Remote reports whether the transaction replays another client's update.
func (tx *Tx) Remote() bool { return tx.remote }

// Nodes returns a copy of the staged node sequence.
func (tx *Tx) Nodes() []canvas.Node { return canvas.CloneNodes(tx.nodes) }

// Edges returns a copy of the staged edge sequence.
func (tx *Tx) Edges() []canvas.Edge { return canvas.CloneEdges(tx.edges) }

// Node returns a copy of the staged node with the given id.
func (tx *Tx) Node(id string) (canvas.Node, bool) {
	i := indexOf(tx.nodes, id, nodeID)
	if i < 0 {
		return canvas.Node{}, false
	}
	return tx.nodes[i].Clone(), true
}

// Edge returns a copy of the staged edge with the given id.
func (tx *Tx) Edge(id string) (canvas.Edge, bool) {
	i := indexOf(tx.edges, id, edgeID)
	if i < 0 {
		return canvas.Edge{}, false
	}
	return tx.edges[i].Clone(), true
}

// Transact runs fn as a nested transaction. Its changes join the enclosing
// transaction; if fn fails only its own changes are discarded.
func (tx *Tx) Transact(fn func(*Tx) error) (err error) {
	if err := tx.check("Transact"); err != nil {
		return err
	}
	nodes, edges := slices.Clone(tx.nodes), slices.Clone(tx.edges)
	nodeMark, lastNodeOp := mark(tx.nodeOps)
	edgeMark, lastEdgeOp := mark(tx.edgeOps)
	restore := func() {
		tx.nodes, tx.edges = nodes, edges
		tx.nodeOps = rewind(tx.nodeOps, nodeMark, lastNodeOp)
		tx.edgeOps = rewind(tx.edgeOps, edgeMark, lastEdgeOp)
	}
	defer func() {
		if r := recover(); r != nil {
			restore()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		restore()
	}
	return err
}

// InsertNodes appends nodes to the sequence. Either all nodes are inserted
// or none: an empty id, an id already present or a (type, entityId) pair
// already present fails the whole call.
func (tx *Tx) InsertNodes(nodes ...canvas.Node) error {
	if err := tx.check("InsertNodes"); err != nil {
		return err
	}
	ids := make(map[string]bool, len(tx.nodes)+len(nodes))
	keys := make(map[canvas.Filter]bool, len(tx.nodes)+len(nodes))
	for _, n := range tx.nodes {
		ids[n.ID] = true
		keys[n.Key()] = true
	}
	for _, n := range nodes {
		if err := checkNode(n, ids, keys); err != nil {
			return err
		}
		ids[n.ID] = true
		keys[n.Key()] = true
	}
	items := canvas.CloneNodes(nodes)
	tx.nodes = append(tx.nodes, items...)
	tx.nodeOps = appendOp(tx.nodeOps, NodeOp{Kind: OpInsert, Items: canvas.CloneNodes(items)})
	return nil
}

func checkNode(n canvas.Node, ids map[string]bool, keys map[canvas.Filter]bool) error {
	switch {
	case n.ID == "":
		return cgerrors.New(cgerrors.ErrCodeInvalidInput, "node id is empty")
	case ids[n.ID]:
		return cgerrors.New(cgerrors.ErrCodeDuplicateEntity, "node %s already exists", n.ID)
	case keys[n.Key()]:
		return cgerrors.New(cgerrors.ErrCodeDuplicateEntity, "node %s already exists", n.Key())
	}
	return nil
}

// InsertEdges appends edges to the sequence. An edge without an id gets the
// derived id "edge-<source>-<target>". Both endpoints must exist in the
// staged node sequence.
func (tx *Tx) InsertEdges(edges ...canvas.Edge) error {
	if err := tx.check("InsertEdges"); err != nil {
		return err
	}
	items, err := tx.checkEdges(edges, tx.edges)
	if err != nil {
		return err
	}
	tx.edges = append(tx.edges, items...)
	tx.edgeOps = appendOp(tx.edgeOps, EdgeOp{Kind: OpInsert, Items: canvas.CloneEdges(items)})
	return nil
}

func (tx *Tx) checkEdges(edges, existing []canvas.Edge) ([]canvas.Edge, error) {
	nodes := make(map[string]bool, len(tx.nodes))
	for _, n := range tx.nodes {
		nodes[n.ID] = true
	}
	ids := make(map[string]bool, len(existing)+len(edges))
	for _, e := range existing {
		ids[e.ID] = true
	}
	items := canvas.CloneEdges(edges)
	for i := range items {
		e := &items[i]
		if e.ID == "" {
			e.ID = canvas.EdgeID(e.Source, e.Target)
		}
		switch {
		case ids[e.ID]:
			return nil, cgerrors.New(cgerrors.ErrCodeDuplicateEdge, "edge %s already exists", e.ID)
		case !nodes[e.Source]:
			return nil, cgerrors.New(cgerrors.ErrCodeDanglingEdge, "edge %s: source %s does not exist", e.ID, e.Source)
		case !nodes[e.Target]:
			return nil, cgerrors.New(cgerrors.ErrCodeDanglingEdge, "edge %s: target %s does not exist", e.ID, e.Target)
		}
		ids[e.ID] = true
	}
	return items, nil
}

// ReplaceNodes swaps the whole node sequence. Edges are left untouched, so
// edges whose endpoints disappear become dangling.
func (tx *Tx) ReplaceNodes(nodes []canvas.Node) error {
	if err := tx.check("ReplaceNodes"); err != nil {
		return err
	}
	if err := canvas.Validate(nodes, nil); err != nil {
		return err
	}
	tx.nodes = canvas.CloneNodes(nodes)
	tx.nodeOps = appendOp(tx.nodeOps, NodeOp{Kind: OpReplace, Items: canvas.CloneNodes(nodes)})
	return nil
}

// ReplaceEdges swaps the whole edge sequence.
func (tx *Tx) ReplaceEdges(edges []canvas.Edge) error {
	if err := tx.check("ReplaceEdges"); err != nil {
		return err
	}
	items, err := tx.checkEdges(edges, nil)
	if err != nil {
		return err
	}
	tx.edges = items
	tx.edgeOps = appendOp(tx.edgeOps, EdgeOp{Kind: OpReplace, Items: canvas.CloneEdges(items)})
	return nil
}

// DeleteNodes removes the nodes with the given ids and returns how many were
// present. Connected edges are not removed.
func (tx *Tx) DeleteNodes(ids ...string) (int, error) {
	if err := tx.check("DeleteNodes"); err != nil {
		return 0, err
	}
	var removed []string
	tx.nodes, removed = without(tx.nodes, ids, nodeID)
	if len(removed) > 0 {
		tx.nodeOps = appendOp(tx.nodeOps, NodeOp{Kind: OpDelete, IDs: removed})
	}
	return len(removed), nil
}

// DeleteEdges removes the edges with the given ids and returns how many were
// present.
func (tx *Tx) DeleteEdges(ids ...string) (int, error) {
	if err := tx.check("DeleteEdges"); err != nil {
		return 0, err
	}
	var removed []string
	tx.edges, removed = without(tx.edges, ids, edgeID)
	if len(removed) > 0 {
		tx.edgeOps = appendOp(tx.edgeOps, EdgeOp{Kind: OpDelete, IDs: removed})
	}
	return len(removed), nil
}

// UpdateNode applies fn to a copy of the node and stores the result. fn must
// not change the id; changing the domain identity to one already in use is
// rejected.
func (tx *Tx) UpdateNode(id string, fn func(*canvas.Node)) error {
	if err := tx.check("UpdateNode"); err != nil {
		return err
	}
	i := indexOf(tx.nodes, id, nodeID)
	if i < 0 {
		return cgerrors.New(cgerrors.ErrCodeNotFound, "node %s not found", id)
	}
	n := tx.nodes[i].Clone()
	fn(&n)
	if n.ID != id {
		tx.doc.logger.Error("node id changed in update", "from", id, "to", n.ID)
		return cgerrors.New(cgerrors.ErrCodeContractViolation, "node id %s must not change", id)
	}
	if n.Key() != tx.nodes[i].Key() {
		for j, other := range tx.nodes {
			if j != i && other.Key() == n.Key() {
				return cgerrors.New(cgerrors.ErrCodeDuplicateEntity, "node %s already exists", n.Key())
			}
		}
	}
	tx.nodes[i] = n
	tx.nodeOps = appendOp(tx.nodeOps, NodeOp{Kind: OpUpdate, Items: []canvas.Node{n.Clone()}})
	return nil
}

// SetPositions moves every node whose id appears in nodes to the position
// carried by that entry. Unknown ids and unchanged positions are ignored.
// Layout results are written back with this.
func (tx *Tx) SetPositions(nodes []canvas.Node) error {
	if err := tx.check("SetPositions"); err != nil {
		return err
	}
	for _, n := range nodes {
		i := indexOf(tx.nodes, n.ID, nodeID)
		if i < 0 || tx.nodes[i].Position == n.Position {
			continue
		}
		pos := n.Position
		if err := tx.UpdateNode(n.ID, func(cur *canvas.Node) { cur.Position = pos }); err != nil {
			return fmt.Errorf("set position of %s: %w", n.ID, err)
		}
	}
	return nil
}

// mark records a savepoint. The last op is copied because appendOp may grow
// it in place.
func mark[T any](ops []Op[T]) (int, Op[T]) {
	if len(ops) == 0 {
		return 0, Op[T]{}
	}
	return len(ops), ops[len(ops)-1]
}

func rewind[T any](ops []Op[T], n int, last Op[T]) []Op[T] {
	ops = ops[:n]
	if n > 0 {
		ops[n-1] = last
	}
	return ops
}

func (tx *Tx) empty() bool { return len(tx.nodeOps) == 0 && len(tx.edgeOps) == 0 }
