package document

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/observability"
)

// Document is the canonical, replicated node and edge sequences of a
// canvas. The zero value is not usable - use New.
//
// A Document is safe for concurrent use. Transactions are serialized.
type Document struct {
	canvasID string
	clientID string
	logger   *log.Logger

	mu    sync.Mutex    // serializes transactions
	owner atomic.Uint64 // goroutine holding mu, 0 when idle
	state sync.RWMutex
	nodes []canvas.Node
	edges []canvas.Edge
	seq   uint64

	obsMu     sync.RWMutex
	observers []*observer
	handlers  []*updateHandler
	nextID    int

	queueMu  sync.Mutex
	queue    []commit
	draining bool
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used for warnings and contract violations.
func WithLogger(l *log.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClientID sets the origin stamped on local updates. Defaults to a
// random UUID.
func WithClientID(id string) Option {
	return func(d *Document) {
		if id != "" {
			d.clientID = id
		}
	}
}

// WithState seeds the document with persisted sequences. The state is
// loaded as-is: dangling edges are kept and only reported.
func WithState(nodes []canvas.Node, edges []canvas.Edge) Option {
	return func(d *Document) {
		d.nodes = canvas.CloneNodes(nodes)
		d.edges = canvas.CloneEdges(edges)
	}
}

// New creates a document for the canvas identified by canvasID.
func New(canvasID string, opts ...Option) *Document {
	d := &Document{
		canvasID: canvasID,
		clientID: uuid.NewString(),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("canvas", canvasID)
	if dangling := canvas.DanglingEdges(d.nodes, d.edges); len(dangling) > 0 {
		d.logger.Warn("loaded dangling edges", "count", len(dangling))
	}
	return d
}

// CanvasID returns the canvas this document belongs to.
func (d *Document) CanvasID() string { return d.canvasID }

// ClientID returns the origin stamped on local updates.
func (d *Document) ClientID() string { return d.clientID }

// Logger returns the document's logger.
func (d *Document) Logger() *log.Logger { return d.logger }

// Seq returns the number of commits applied to this document.
func (d *Document) Seq() uint64 {
	d.state.RLock()
	defer d.state.RUnlock()
	return d.seq
}

// Snapshot returns fresh copies of the committed sequences.
func (d *Document) Snapshot() ([]canvas.Node, []canvas.Edge) {
	d.state.RLock()
	defer d.state.RUnlock()
	return canvas.CloneNodes(d.nodes), canvas.CloneEdges(d.edges)
}

// Nodes returns a copy of the committed node sequence.
func (d *Document) Nodes() []canvas.Node {
	d.state.RLock()
	defer d.state.RUnlock()
	return canvas.CloneNodes(d.nodes)
}

// Edges returns a copy of the committed edge sequence.
func (d *Document) Edges() []canvas.Edge {
	d.state.RLock()
	defer d.state.RUnlock()
	return canvas.CloneEdges(d.edges)
}

// Transact runs fn with exclusive write access. If fn returns an error or
// panics, every staged change is discarded. Observers fire once after a
// successful commit that changed anything.
//
// Nested transactions go through [Tx.Transact]. Calling Transact on the
// same document from inside fn fails with CONTRACT_VIOLATION.
func (d *Document) Transact(fn func(*Tx) error) error {
	return d.transact(d.clientID, false, fn)
}

func (d *Document) transact(origin string, remote bool, fn func(*Tx) error) (err error) {
	gid := goroutineID()
	if gid != 0 && d.owner.Load() == gid {
		err = cgerrors.New(cgerrors.ErrCodeContractViolation, "Transact called inside a transaction; use Tx.Transact to nest")
		d.logger.Error("re-entrant transaction", "canvas", d.canvasID, "err", err)
		return err
	}
	d.mu.Lock()
	d.owner.Store(gid)
	tx := d.begin(origin, remote)
	committed := false
	defer func() {
		tx.closed = true
		r := recover()
		if r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
		}
		if !committed && err != nil {
			observability.Document().OnRollback(d.canvasID, err)
		}
		d.owner.Store(0)
		d.mu.Unlock()
		if r != nil {
			panic(r)
		}
		if committed {
			d.drain()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if tx.empty() {
		return nil
	}
	d.commit(tx)
	committed = true
	return nil
}

// commit publishes the staged sequences and queues the notification.
// Called with d.mu held.
func (d *Document) commit(tx *Tx) {
	d.state.Lock()
	d.nodes, d.edges = tx.nodes, tx.edges
	d.seq++
	c := commit{
		seq:    d.seq,
		remote: tx.remote,
		nodes:  d.nodes,
		edges:  d.edges,
		update: Update{
			CanvasID: d.canvasID,
			Origin:   tx.origin,
			Seq:      d.seq,
			NodeOps:  tx.nodeOps,
			EdgeOps:  tx.edgeOps,
		},
	}
	d.state.Unlock()

	observability.Document().OnCommit(d.canvasID, len(tx.nodeOps), len(tx.edgeOps), tx.remote)
	d.logger.Debug("commit", "seq", c.seq, "origin", tx.origin, "nodeOps", len(tx.nodeOps), "edgeOps", len(tx.edgeOps))

	d.queueMu.Lock()
	d.queue = append(d.queue, c)
	d.queueMu.Unlock()
}

// ApplyUpdate replays an update produced by another client. Operations that
// no longer apply are skipped and logged. The resulting commit is not handed
// to OnUpdate handlers, so it is never re-broadcast.
func (d *Document) ApplyUpdate(u Update) error {
	if u.Origin == d.clientID {
		return nil
	}
	return d.transact(u.Origin, true, func(tx *Tx) error {
		for _, op := range u.NodeOps {
			d.applyNodeOp(tx, op)
		}
		for _, op := range u.EdgeOps {
			d.applyEdgeOp(tx, op)
		}
		return nil
	})
}

func (d *Document) applyNodeOp(tx *Tx, op NodeOp) {
	switch op.Kind {
	case OpInsert:
		for _, n := range op.Items {
			if err := tx.InsertNodes(n); err != nil {
				d.logger.Warn("skipping remote node insert", "node", n.ID, "err", err)
			}
		}
	case OpDelete:
		_, _ = tx.DeleteNodes(op.IDs...)
	case OpReplace:
		if err := tx.ReplaceNodes(op.Items); err != nil {
			d.logger.Warn("skipping remote node replace", "err", err)
		}
	case OpUpdate:
		for _, n := range op.Items {
			if err := tx.UpdateNode(n.ID, func(cur *canvas.Node) { *cur = n.Clone() }); err != nil {
				d.logger.Warn("skipping remote node update", "node", n.ID, "err", err)
			}
		}
	default:
		d.logger.Warn("unknown remote op", "kind", op.Kind)
	}
}

// Remote edges are accepted even when an endpoint is gone: a concurrent
// delete on another client can legitimately leave them dangling.
func (d *Document) applyEdgeOp(tx *Tx, op EdgeOp) {
	switch op.Kind {
	case OpInsert:
		for _, e := range op.Items {
			if indexOf(tx.edges, e.ID, edgeID) >= 0 {
				d.logger.Warn("skipping remote edge insert", "edge", e.ID)
				continue
			}
			tx.edges = append(tx.edges, e.Clone())
			tx.edgeOps = appendOp(tx.edgeOps, EdgeOp{Kind: OpInsert, Items: []canvas.Edge{e.Clone()}})
		}
	case OpDelete:
		_, _ = tx.DeleteEdges(op.IDs...)
	case OpReplace:
		tx.edges = canvas.CloneEdges(op.Items)
		tx.edgeOps = appendOp(tx.edgeOps, EdgeOp{Kind: OpReplace, Items: canvas.CloneEdges(op.Items)})
	case OpUpdate:
		for _, e := range op.Items {
			i := indexOf(tx.edges, e.ID, edgeID)
			if i < 0 {
				d.logger.Warn("skipping remote edge update", "edge", e.ID)
				continue
			}
			tx.edges[i] = e.Clone()
			tx.edgeOps = appendOp(tx.edgeOps, EdgeOp{Kind: OpUpdate, Items: []canvas.Edge{e.Clone()}})
		}
	default:
		d.logger.Warn("unknown remote op", "kind", op.Kind)
	}
}

// goroutineID returns the id of the calling goroutine from its stack
// header ("goroutine 42 [running]:"), or 0 if it cannot be parsed.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
