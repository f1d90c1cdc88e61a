package collab

import (
	"context"
	"sync"

	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/observability"
)

// MemoryTransport fans updates out to in-process subscribers. Publish
// blocks until every subscriber has buffer space, the subscriber goes away,
// or ctx is done.
type MemoryTransport struct {
	mu     sync.RWMutex
	subs   map[string]map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan document.Update
	done   chan struct{}
	closed bool
	once   sync.Once
}

// stop unblocks pending sends, then closes the channel.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *subscriber) send(ctx context.Context, u document.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- u:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewMemoryTransport returns an empty hub.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[string]map[int]*subscriber)}
}

func (t *MemoryTransport) Publish(ctx context.Context, canvasID string, u document.Update) error {
	data, err := encodeUpdate(u)
	if err != nil {
		return cgerrors.Wrap(cgerrors.ErrCodeTransport, err, "encode update")
	}

	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return cgerrors.New(cgerrors.ErrCodeTransport, "transport closed")
	}
	subs := make([]*subscriber, 0, len(t.subs[canvasID]))
	for _, s := range t.subs[canvasID] {
		subs = append(subs, s)
	}
	t.mu.RUnlock()

	observability.Transport().OnPublish(ctx, canvasID, len(data))
	for _, s := range subs {
		// Each subscriber decodes its own copy.
		cp, err := decodeUpdate(data)
		if err != nil {
			return cgerrors.Wrap(cgerrors.ErrCodeTransport, err, "decode update")
		}
		if err := s.send(ctx, cp); err != nil {
			return cgerrors.Wrap(cgerrors.ErrCodeTransport, err, "deliver update")
		}
		observability.Transport().OnReceive(ctx, canvasID, len(data))
	}
	return nil
}

func (t *MemoryTransport) Subscribe(_ context.Context, canvasID string) (<-chan document.Update, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, nil, cgerrors.New(cgerrors.ErrCodeTransport, "transport closed")
	}
	s := &subscriber{
		ch:   make(chan document.Update, subscriptionBuffer),
		done: make(chan struct{}),
	}
	t.nextID++
	id := t.nextID
	if t.subs[canvasID] == nil {
		t.subs[canvasID] = make(map[int]*subscriber)
	}
	t.subs[canvasID][id] = s

	cancel := func() {
		t.mu.Lock()
		delete(t.subs[canvasID], id)
		if len(t.subs[canvasID]) == 0 {
			delete(t.subs, canvasID)
		}
		t.mu.Unlock()
		s.stop()
	}
	return s.ch, cancel, nil
}

// Subscribers returns the number of live subscriptions for a canvas.
func (t *MemoryTransport) Subscribers(canvasID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs[canvasID])
}

// Close ends every subscription.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var subs []*subscriber
	for _, byID := range t.subs {
		for _, s := range byID {
			subs = append(subs, s)
		}
	}
	t.subs = nil
	t.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

var _ Transport = (*MemoryTransport)(nil)
