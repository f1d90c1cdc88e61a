package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matzehuels/canvasgraph/pkg/graph"
)

// FileStore keeps one JSON file per canvas in a directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates baseDir if needed. An empty baseDir selects
// ~/.config/canvasgraph/canvases.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "canvasgraph", "canvases")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(canvasID string) (string, error) {
	if err := checkID(canvasID); err != nil {
		return "", err
	}
	if strings.ContainsAny(canvasID, `/\`) || canvasID == "." || canvasID == ".." {
		return "", fmt.Errorf("invalid canvas id %q", canvasID)
	}
	return filepath.Join(s.baseDir, canvasID+".json"), nil
}

func (s *FileStore) Load(_ context.Context, canvasID string) (graph.Snapshot, error) {
	path, err := s.path(canvasID)
	if err != nil {
		return graph.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := graph.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return graph.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("load canvas %s: %w", canvasID, err)
	}
	snap.CanvasID = canvasID
	return snap, nil
}

func (s *FileStore) Save(_ context.Context, snap graph.Snapshot) error {
	path, err := s.path(snap.CanvasID)
	if err != nil {
		return err
	}
	data, err := graph.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal canvas: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write canvas file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, canvasID string) error {
	path, err := s.path(canvasID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove canvas file: %w", err)
	}
	return nil
}

// List returns the ids of all stored canvases.
func (s *FileStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

// Path returns the base directory.
func (s *FileStore) Path() string { return s.baseDir }

func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
