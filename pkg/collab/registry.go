package collab

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/store"
)

// Registry opens at most one session per canvas id and shares it among
// callers.
type Registry struct {
	transport Transport
	store     store.Store
	opts      []Option
	logger    *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	opening  map[string]*opening
	closed   bool
}

type opening struct {
	done chan struct{}
	s    *Session
	err  error
}

// NewRegistry creates a registry whose sessions use t and st. The options
// are applied to every session it opens.
func NewRegistry(t Transport, st store.Store, opts ...Option) *Registry {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		transport: t,
		store:     st,
		opts:      opts,
		logger:    o.logger,
		sessions:  make(map[string]*Session),
		opening:   make(map[string]*opening),
	}
}

// Get returns the session for canvasID, opening it on first use.
// Concurrent callers for the same id wait for a single Open.
func (r *Registry) Get(ctx context.Context, canvasID string) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, cgerrors.New(cgerrors.ErrCodeInternal, "registry closed")
	}
	if s, ok := r.sessions[canvasID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	if op, ok := r.opening[canvasID]; ok {
		r.mu.Unlock()
		select {
		case <-op.done:
			return op.s, op.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	op := &opening{done: make(chan struct{})}
	r.opening[canvasID] = op
	r.mu.Unlock()

	op.s, op.err = Open(ctx, canvasID, r.transport, r.store, r.opts...)

	r.mu.Lock()
	delete(r.opening, canvasID)
	closed := r.closed
	if op.err == nil && !closed {
		r.sessions[canvasID] = op.s
	}
	r.mu.Unlock()
	if op.err == nil && closed {
		_ = op.s.Close(ctx)
		op.s, op.err = nil, cgerrors.New(cgerrors.ErrCodeInternal, "registry closed")
	}
	close(op.done)
	return op.s, op.err
}

// Lookup returns an already open session.
func (r *Registry) Lookup(canvasID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[canvasID]
	return s, ok
}

// IDs returns the ids of open sessions in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Release closes and forgets the session for canvasID, if open.
func (r *Registry) Release(ctx context.Context, canvasID string) error {
	r.mu.Lock()
	s, ok := r.sessions[canvasID]
	delete(r.sessions, canvasID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// FlushAll persists every open session.
func (r *Registry) FlushAll(ctx context.Context) error {
	var errs []error
	for _, s := range r.snapshot() {
		errs = append(errs, s.Flush(ctx))
	}
	return errors.Join(errs...)
}

// Close closes every session. The registry cannot be used afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, s := range r.snapshot() {
		errs = append(errs, s.Close(ctx))
	}
	r.mu.Lock()
	clear(r.sessions)
	r.mu.Unlock()
	r.logger.Debug("registry closed")
	return errors.Join(errs...)
}

func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
