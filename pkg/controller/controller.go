// Package controller is the surface the rendering layer talks to.
//
// A [Controller] owns one canvas document together with its mirror and
// selection state. Reads come from the mirror; every write is a document
// transaction, so a remote peer or an observer never sees a half-applied
// operation.
package controller

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/canvasgraph/pkg/branch"
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/layout"
	"github.com/matzehuels/canvasgraph/pkg/mirror"
	"github.com/matzehuels/canvasgraph/pkg/placement"
	"github.com/matzehuels/canvasgraph/pkg/selection"
)

// NodeSpec describes a node to add. ID is generated when empty and Position
// is computed by the planner when nil.
type NodeSpec struct {
	ID       string           `json:"id,omitempty"`
	Type     canvas.NodeType  `json:"type" validate:"required"`
	EntityID string           `json:"entityId" validate:"required"`
	Position *canvas.Position `json:"position,omitempty"`
	Measured *canvas.Size     `json:"measured,omitempty"`
	ParentID string           `json:"parentId,omitempty"`
	Data     canvas.Payload   `json:"data"`
}

// PortRef names one end of a user-drawn connection.
type PortRef struct {
	NodeID string `json:"nodeId" validate:"required"`
	Handle string `json:"handle,omitempty"`
}

// Controller binds a document to placement, layout and selection.
type Controller struct {
	doc      *document.Document
	mirror   *mirror.Mirror
	selector *selection.Selector
	planner  *placement.Planner

	layout     layout.Options
	autoLayout bool
	logger     *log.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the document's logger.
func WithLogger(l *log.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithPlanner replaces the default placement planner.
func WithPlanner(p *placement.Planner) Option { return func(c *Controller) { c.planner = p } }

// WithLayoutOptions sets the options of full layout passes.
func WithLayoutOptions(o layout.Options) Option { return func(c *Controller) { c.layout = o } }

// WithAutoLayout toggles rightmost placement and the descendant pass after
// AddNode. It is on by default.
func WithAutoLayout(on bool) Option { return func(c *Controller) { c.autoLayout = on } }

// New binds a controller to doc. Close releases the mirror.
func New(doc *document.Document, opts ...Option) *Controller {
	c := &Controller{
		doc:        doc,
		layout:     layout.DefaultOptions(),
		autoLayout: true,
		logger:     doc.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.planner == nil {
		c.planner = placement.New(placement.WithLogger(c.logger))
	}
	if c.layout.Logger == nil {
		c.layout.Logger = c.logger
	}
	c.mirror = mirror.Bind(doc)
	c.selector = selection.New(c.mirror, c.logger)
	return c
}

// Close detaches the mirror from the document.
func (c *Controller) Close() { c.mirror.Close() }

func (c *Controller) Document() *document.Document  { return c.doc }
func (c *Controller) Mirror() *mirror.Mirror        { return c.mirror }
func (c *Controller) Selector() *selection.Selector { return c.selector }
func (c *Controller) Planner() *placement.Planner   { return c.planner }
func (c *Controller) AutoLayout() bool              { return c.autoLayout }

// Nodes returns the mirrored node set.
func (c *Controller) Nodes() []canvas.Node { return c.mirror.Nodes() }

// Edges returns the mirrored edge set.
func (c *Controller) Edges() []canvas.Edge { return c.mirror.Edges() }

// Selection returns the current selection.
func (c *Controller) Selection() selection.Selection { return c.selector.State() }

// AddNode inserts a node and connects it from the nodes addressed by
// connectTo. Filters that match nothing are ignored.
//
// When a node with the same (type, entityId) exists, it is selected and
// returned together with a DUPLICATE_ENTITY error. Otherwise the node and
// its edges are inserted in one transaction, every other node is
// deselected, and with auto-layout on the descendants of the sources are
// restacked in a follow-up transaction.
func (c *Controller) AddNode(spec NodeSpec, connectTo []canvas.Filter) (canvas.Node, error) {
	if _, err := canvas.ParseNodeType(string(spec.Type)); err != nil {
		return canvas.Node{}, err
	}
	if spec.EntityID == "" {
		return canvas.Node{}, cgerrors.New(cgerrors.ErrCodeInvalidInput, "node entity id must not be empty")
	}
	key := canvas.Filter{Type: spec.Type, EntityID: spec.EntityID}

	if existing, ok := c.mirror.Find(key); ok {
		return c.selectExisting(existing)
	}

	node := canvas.Node{
		ID:       spec.ID,
		Type:     spec.Type,
		EntityID: spec.EntityID,
		Measured: spec.Measured,
		ParentID: spec.ParentID,
		Data:     spec.Data,
	}
	if node.ID == "" {
		node.ID = "node-" + uuid.NewString()
	}
	if node.Data.Kind == "" {
		node.Data.Kind = spec.Type
	}

	var sources []canvas.Node
	err := c.doc.Transact(func(tx *document.Tx) error {
		nodes, edges := tx.Nodes(), tx.Edges()
		sources = resolve(nodes, connectTo)

		pos, err := c.planner.Position(placement.Request{
			Nodes:      nodes,
			Edges:      edges,
			Sources:    sources,
			Explicit:   spec.Position,
			AutoLayout: c.autoLayout,
		})
		if err != nil {
			return err
		}
		node.Position = pos

		for _, n := range nodes {
			if n.Selected {
				if err := tx.UpdateNode(n.ID, func(cur *canvas.Node) { cur.Selected = false }); err != nil {
					return err
				}
			}
		}
		if err := tx.InsertNodes(node); err != nil {
			return err
		}
		for _, s := range sources {
			e := canvas.NewEdge(s.ID, node.ID)
			if _, ok := tx.Edge(e.ID); ok {
				continue
			}
			if err := tx.InsertEdges(e); err != nil {
				return err
			}
		}
		return nil
	})
	if cgerrors.Is(err, cgerrors.ErrCodeDuplicateEntity) {
		// Lost a race with another writer.
		if existing, ok := c.mirror.Find(key); ok {
			return c.selectExisting(existing)
		}
	}
	if err != nil {
		return canvas.Node{}, err
	}
	c.logger.Debug("node added", "id", node.ID, "type", node.Type, "sources", len(sources))

	if c.autoLayout && len(sources) > 0 {
		if err := c.layoutDescendants(canvas.NodeIDs(sources)); err != nil {
			return node, err
		}
		if n, ok := c.mirror.Node(node.ID); ok {
			node = n
		}
	}
	return node, nil
}

func (c *Controller) selectExisting(n canvas.Node) (canvas.Node, error) {
	if n.Type != canvas.NodeTypeSkillResponse {
		c.logger.Warn("node already exists", "type", n.Type, "entityId", n.EntityID, "id", n.ID)
	}
	if _, err := c.selector.SelectByFilter(n.Key()); err != nil {
		return n, err
	}
	n.Selected = true
	return n, cgerrors.New(cgerrors.ErrCodeDuplicateEntity, "node %s already exists", n.Key())
}

func resolve(nodes []canvas.Node, filters []canvas.Filter) []canvas.Node {
	var out []canvas.Node
	for _, f := range filters {
		n, ok := canvas.FindByFilter(nodes, f)
		if !ok || slices.ContainsFunc(out, func(o canvas.Node) bool { return o.ID == n.ID }) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (c *Controller) layoutDescendants(startIDs []string) error {
	nodes, edges := c.doc.Snapshot()
	moved := branch.LayoutDescendants(startIDs, nodes, edges, c.planner.Spacing)
	if len(moved) == 0 {
		return nil
	}
	return c.doc.Transact(func(tx *document.Tx) error {
		return tx.SetPositions(moved)
	})
}

// OnLayout runs a full layout in the given direction and writes every
// position in one transaction.
func (c *Controller) OnLayout(ctx context.Context, direction canvas.Direction) (layout.Result, error) {
	opts := c.layout
	opts.Direction = direction
	nodes, edges := c.doc.Snapshot()
	res, err := layout.Layout(ctx, nodes, edges, opts)
	if err != nil {
		return layout.Result{}, err
	}
	err = c.doc.Transact(func(tx *document.Tx) error {
		return tx.SetPositions(res.Nodes)
	})
	return res, err
}

// ApplyPositions writes positions computed elsewhere, such as a cached
// layout, in one transaction. Unknown ids are skipped.
func (c *Controller) ApplyPositions(nodes []canvas.Node) error {
	return c.doc.Transact(func(tx *document.Tx) error {
		return tx.SetPositions(nodes)
	})
}

// OnConnect adds the edge source→target. Both nodes must exist and the edge
// must not.
func (c *Controller) OnConnect(source, target PortRef) (canvas.Edge, error) {
	if source.NodeID == "" || target.NodeID == "" {
		return canvas.Edge{}, cgerrors.New(cgerrors.ErrCodeInvalidInput, "connection needs a source and a target node")
	}
	e := canvas.NewEdge(source.NodeID, target.NodeID)
	err := c.doc.Transact(func(tx *document.Tx) error {
		return tx.InsertEdges(e)
	})
	if err != nil {
		return canvas.Edge{}, err
	}
	return e, nil
}

// SetSelectionByFilter selects the node addressed by f alone.
func (c *Controller) SetSelectionByFilter(f canvas.Filter) (bool, error) {
	return c.selector.SelectByFilter(f)
}

// UpdateMeasuredSize records a size reported by the rendering layer.
// Unknown ids are ignored since measurements may arrive after a delete.
func (c *Controller) UpdateMeasuredSize(id string, size canvas.Size) error {
	if size.Width <= 0 || size.Height <= 0 {
		return cgerrors.New(cgerrors.ErrCodeInvalidInput, "measured size must be positive, got %gx%g", size.Width, size.Height)
	}
	err := c.doc.Transact(func(tx *document.Tx) error {
		return tx.UpdateNode(id, func(n *canvas.Node) { n.Measured = &size })
	})
	if cgerrors.Is(err, cgerrors.ErrCodeNotFound) {
		c.logger.Debug("measurement for unknown node", "id", id)
		return nil
	}
	return err
}

// RelayoutBranch re-flows the branch around nodeID. With fromRoot the roots
// of the branch stay put; otherwise only its deepest level moves.
func (c *Controller) RelayoutBranch(ctx context.Context, nodeID string, fromRoot bool) ([]canvas.Node, error) {
	nodes, edges := c.doc.Snapshot()
	opts := branch.DefaultOptions()
	opts.FromRoot = fromRoot
	opts.Spacing = c.planner.Spacing
	opts.Logger = c.logger
	out, err := branch.RelayoutAround(ctx, nodeID, nodes, edges, opts)
	if err != nil {
		return nil, err
	}
	err = c.doc.Transact(func(tx *document.Tx) error {
		return tx.SetPositions(out)
	})
	return out, err
}

// MoveNode sets a node's parent-relative position, as after a drag.
func (c *Controller) MoveNode(id string, pos canvas.Position) error {
	return c.doc.Transact(func(tx *document.Tx) error {
		return tx.UpdateNode(id, func(n *canvas.Node) { n.Position = pos })
	})
}

// DeleteNodes removes nodes and reports how many existed. Edges touching
// them are left in place and skipped by layout.
func (c *Controller) DeleteNodes(ids ...string) (int, error) {
	var n int
	err := c.doc.Transact(func(tx *document.Tx) error {
		var err error
		n, err = tx.DeleteNodes(ids...)
		return err
	})
	return n, err
}
