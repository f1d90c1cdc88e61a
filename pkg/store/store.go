// Package store persists canvas snapshots keyed by canvas id.
//
// Collaboration sessions load a canvas from a Store when they open and save
// it back on flush. Backends:
//   - [MemoryStore]: in-process, for tests and ephemeral servers
//   - [FileStore]: JSON files in a directory, for the CLI
//   - [MongoStore]: a MongoDB collection, for multi-instance servers
package store

import (
	"context"
	"errors"

	"github.com/matzehuels/canvasgraph/pkg/graph"
)

// ErrNotFound is returned by Load when no snapshot exists for a canvas.
var ErrNotFound = errors.New("canvas not found")

// Store persists snapshots.
type Store interface {
	Load(ctx context.Context, canvasID string) (graph.Snapshot, error)
	Save(ctx context.Context, s graph.Snapshot) error
	Delete(ctx context.Context, canvasID string) error
	Close() error
}

func checkID(canvasID string) error {
	if canvasID == "" {
		return errors.New("canvas id must not be empty")
	}
	return nil
}
