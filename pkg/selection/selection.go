// Package selection addresses canvas nodes by their domain identity and
// keeps the selection flags of a document.
//
// Selection writes only ever flip the Selected flag of existing nodes, in a
// single document transaction. They never create, delete or move nodes.
package selection

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
	"github.com/matzehuels/canvasgraph/pkg/mirror"
)

// Selection is the selection state of a canvas session. The primary node is
// set iff exactly one node is selected.
type Selection struct {
	SelectedNodeIDs       []string `json:"selectedNodeIds"`
	PrimarySelectedNodeID string   `json:"primarySelectedNodeId,omitempty"`
}

// Selector reads from a mirror and writes selection flags to its document.
type Selector struct {
	doc    *document.Document
	mirror *mirror.Mirror
	logger *log.Logger
}

// New returns a selector over the mirror's document.
func New(m *mirror.Mirror, logger *log.Logger) *Selector {
	if logger == nil {
		logger = m.Document().Logger()
	}
	return &Selector{doc: m.Document(), mirror: m, logger: logger}
}

// SelectByFilter selects the node matching f and deselects every other
// node. It reports whether a node matched; no match leaves the selection
// untouched.
func (s *Selector) SelectByFilter(f canvas.Filter) (bool, error) {
	n, ok := s.mirror.Find(f)
	if !ok {
		s.logger.Debug("no node matches filter", "filter", f)
		return false, nil
	}
	return true, s.apply(func(cur canvas.Node) bool { return cur.ID == n.ID })
}

// AddByFilter adds the node matching f to the selection.
func (s *Selector) AddByFilter(f canvas.Filter) (bool, error) {
	n, ok := s.mirror.Find(f)
	if !ok {
		return false, nil
	}
	return true, s.apply(func(cur canvas.Node) bool { return cur.Selected || cur.ID == n.ID })
}

// DeselectByFilter removes the node matching f from the selection.
func (s *Selector) DeselectByFilter(f canvas.Filter) (bool, error) {
	n, ok := s.mirror.Find(f)
	if !ok {
		return false, nil
	}
	return true, s.apply(func(cur canvas.Node) bool { return cur.Selected && cur.ID != n.ID })
}

// SetSelection selects exactly the nodes with the given ids. Unknown ids
// are ignored.
func (s *Selector) SetSelection(ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return s.apply(func(cur canvas.Node) bool { return want[cur.ID] })
}

// Clear deselects every node.
func (s *Selector) Clear() error {
	return s.apply(func(canvas.Node) bool { return false })
}

// Reset clears the selection when the session changes.
func (s *Selector) Reset() error {
	return s.Clear()
}

// State derives the selection from the mirror.
func (s *Selector) State() Selection {
	return FromNodes(s.mirror.Nodes())
}

// FromNodes derives a selection from node flags, in node order.
func FromNodes(nodes []canvas.Node) Selection {
	sel := Selection{SelectedNodeIDs: []string{}}
	for _, n := range nodes {
		if n.Selected {
			sel.SelectedNodeIDs = append(sel.SelectedNodeIDs, n.ID)
		}
	}
	if len(sel.SelectedNodeIDs) == 1 {
		sel.PrimarySelectedNodeID = sel.SelectedNodeIDs[0]
	}
	return sel
}

// apply sets every node's flag to selected(node) in one transaction. Nodes
// whose flag already matches are not written.
func (s *Selector) apply(selected func(canvas.Node) bool) error {
	return s.doc.Transact(func(tx *document.Tx) error {
		for _, n := range tx.Nodes() {
			want := selected(n)
			if n.Selected == want {
				continue
			}
			if err := tx.UpdateNode(n.ID, func(cur *canvas.Node) { cur.Selected = want }); err != nil {
				return err
			}
		}
		return nil
	})
}
