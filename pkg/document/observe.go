package document

import (
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/observability"
)

// Change describes one committed transaction as seen by an observer.
//
// Nodes and Edges are fresh copies of both committed sequences, so an
// observer of either sequence always sees a consistent pair.
type Change struct {
	Seq     uint64
	Origin  string
	Remote  bool
	Nodes   []canvas.Node
	Edges   []canvas.Edge
	NodeOps []NodeOp
	EdgeOps []EdgeOp
}

// ChangeFunc receives a committed change.
type ChangeFunc func(Change)

type observer struct {
	name    string
	onNodes ChangeFunc
	onEdges ChangeFunc
}

type updateHandler struct {
	id int
	fn func(Update)
}

type commit struct {
	seq    uint64
	remote bool
	nodes  []canvas.Node
	edges  []canvas.Edge
	update Update
}

// Observe registers callbacks fired once per commit that touched the node
// or edge sequence. Either callback may be nil. Registering a name that is
// already registered replaces its callbacks in place.
func (d *Document) Observe(name string, onNodes, onEdges ChangeFunc) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	for _, o := range d.observers {
		if o.name == name {
			o.onNodes, o.onEdges = onNodes, onEdges
			return
		}
	}
	d.observers = append(d.observers, &observer{name: name, onNodes: onNodes, onEdges: onEdges})
}

// Unobserve removes the observer registered under name.
func (d *Document) Unobserve(name string) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	for i, o := range d.observers {
		if o.name == name {
			d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
			return
		}
	}
}

// Observers returns the registered observer names in registration order.
func (d *Document) Observers() []string {
	d.obsMu.RLock()
	defer d.obsMu.RUnlock()
	names := make([]string, len(d.observers))
	for i, o := range d.observers {
		names[i] = o.name
	}
	return names
}

// OnUpdate registers fn to receive the update of every local commit. The
// returned function unregisters it.
func (d *Document) OnUpdate(fn func(Update)) (cancel func()) {
	d.obsMu.Lock()
	d.nextID++
	id := d.nextID
	d.handlers = append(d.handlers, &updateHandler{id: id, fn: fn})
	d.obsMu.Unlock()

	return func() {
		d.obsMu.Lock()
		defer d.obsMu.Unlock()
		for i, h := range d.handlers {
			if h.id == id {
				d.handlers = append(d.handlers[:i:i], d.handlers[i+1:]...)
				return
			}
		}
	}
}

// drain delivers queued commits in order. Only one goroutine drains at a
// time; commits queued meanwhile, including those made by observers, are
// picked up by the active drainer.
func (d *Document) drain() {
	d.queueMu.Lock()
	if d.draining {
		d.queueMu.Unlock()
		return
	}
	d.draining = true
	for len(d.queue) > 0 {
		c := d.queue[0]
		d.queue = d.queue[1:]
		d.queueMu.Unlock()
		d.deliver(c)
		d.queueMu.Lock()
	}
	d.draining = false
	d.queueMu.Unlock()
}

func (d *Document) deliver(c commit) {
	d.obsMu.RLock()
	observers := make([]observer, len(d.observers))
	for i, o := range d.observers {
		observers[i] = *o
	}
	handlers := append([]*updateHandler(nil), d.handlers...)
	d.obsMu.RUnlock()

	change := func() Change {
		return Change{
			Seq:     c.seq,
			Origin:  c.update.Origin,
			Remote:  c.remote,
			Nodes:   canvas.CloneNodes(c.nodes),
			Edges:   canvas.CloneEdges(c.edges),
			NodeOps: c.update.NodeOps,
			EdgeOps: c.update.EdgeOps,
		}
	}
	for _, o := range observers {
		if o.onNodes != nil && len(c.update.NodeOps) > 0 {
			d.safely(o.name, func() { o.onNodes(change()) })
		}
		if o.onEdges != nil && len(c.update.EdgeOps) > 0 {
			d.safely(o.name, func() { o.onEdges(change()) })
		}
	}
	if c.remote {
		return
	}
	for _, h := range handlers {
		d.safely("update-handler", func() { h.fn(c.update) })
	}
}

func (d *Document) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked", "observer", name, "panic", r)
			observability.Document().OnObserverPanic(d.canvasID, name, r)
		}
	}()
	fn()
}
