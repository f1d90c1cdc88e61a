// Package mirror keeps a local, read-only snapshot of a graph document.
//
// A [Mirror] is the view the rest of the application reads. It is rebuilt
// from the committed document state on every observed change, so readers
// never see a transaction in progress and never see an edge without the
// node it references.
package mirror

import (
	"fmt"
	"sync"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
)

// Mirror is a render-friendly copy of a document.
type Mirror struct {
	doc  *document.Document
	name string

	mu      sync.RWMutex
	nodes   []canvas.Node
	edges   []canvas.Edge
	version uint64

	listenMu  sync.Mutex
	listeners []func(Snapshot)
}

// Snapshot is a consistent pair of sequences at a document version.
type Snapshot struct {
	Version uint64
	Nodes   []canvas.Node
	Edges   []canvas.Edge
}

// Bind attaches a new mirror to doc and copies its current state.
func Bind(doc *document.Document) *Mirror {
	m := &Mirror{doc: doc}
	m.name = fmt.Sprintf("mirror-%p", m)
	doc.Observe(m.name, m.sync, m.sync)
	m.nodes, m.edges = doc.Snapshot()
	m.version = doc.Seq()
	return m
}

// sync swaps in the committed state carried by ch. A commit touching both
// sequences reaches sync twice; the second call is a no-op.
func (m *Mirror) sync(ch document.Change) {
	m.mu.Lock()
	if ch.Seq <= m.version {
		m.mu.Unlock()
		return
	}
	m.nodes, m.edges, m.version = ch.Nodes, ch.Edges, ch.Seq
	m.mu.Unlock()

	m.listenMu.Lock()
	listeners := append([]func(Snapshot){}, m.listeners...)
	m.listenMu.Unlock()
	for _, fn := range listeners {
		fn(m.Snapshot())
	}
}

// Nodes returns a copy of the mirrored nodes.
func (m *Mirror) Nodes() []canvas.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return canvas.CloneNodes(m.nodes)
}

// Edges returns a copy of the mirrored edges.
func (m *Mirror) Edges() []canvas.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return canvas.CloneEdges(m.edges)
}

// Snapshot returns nodes and edges from the same commit.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Version: m.version,
		Nodes:   canvas.CloneNodes(m.nodes),
		Edges:   canvas.CloneEdges(m.edges),
	}
}

// Version returns the document sequence number last mirrored.
func (m *Mirror) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Node looks up a mirrored node by id.
func (m *Mirror) Node(id string) (canvas.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.nodes {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return canvas.Node{}, false
}

// Find returns the first mirrored node matching f.
func (m *Mirror) Find(f canvas.Filter) (canvas.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := canvas.FindByFilter(m.nodes, f)
	return n.Clone(), ok
}

// OnChange registers fn to run after each new snapshot is swapped in.
func (m *Mirror) OnChange(fn func(Snapshot)) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Document returns the document this mirror reads from.
func (m *Mirror) Document() *document.Document { return m.doc }

// Close detaches the mirror from its document. The last snapshot stays
// readable.
func (m *Mirror) Close() {
	m.doc.Unobserve(m.name)
}
