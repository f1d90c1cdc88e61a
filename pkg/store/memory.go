package store

import (
	"context"
	"sync"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
)

// MemoryStore keeps snapshots in a map. Stored snapshots are deep copies.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]graph.Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]graph.Snapshot)}
}

func (s *MemoryStore) Load(_ context.Context, canvasID string) (graph.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[canvasID]
	if !ok {
		return graph.Snapshot{}, ErrNotFound
	}
	return clone(snap), nil
}

func (s *MemoryStore) Save(_ context.Context, snap graph.Snapshot) error {
	if err := checkID(snap.CanvasID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.CanvasID] = clone(snap)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, canvasID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, canvasID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(snap graph.Snapshot) graph.Snapshot {
	snap.Nodes = canvas.CloneNodes(snap.Nodes)
	snap.Edges = canvas.CloneEdges(snap.Edges)
	return snap
}

var _ Store = (*MemoryStore)(nil)
