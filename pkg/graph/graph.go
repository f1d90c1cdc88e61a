package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/mirror"
)

// Snapshot is the serialized state of one canvas.
type Snapshot struct {
	CanvasID string        `json:"canvasId,omitempty" bson:"canvasId,omitempty"`
	Version  uint64        `json:"version,omitempty" bson:"version,omitempty"`
	Nodes    []canvas.Node `json:"nodes" bson:"nodes"`
	Edges    []canvas.Edge `json:"edges" bson:"edges"`
}

// FromDocument snapshots the committed state of doc.
func FromDocument(doc *document.Document) Snapshot {
	nodes, edges := doc.Snapshot()
	return Snapshot{CanvasID: doc.CanvasID(), Version: doc.Seq(), Nodes: nodes, Edges: edges}
}

// FromMirror snapshots a mirror.
func FromMirror(m *mirror.Mirror) Snapshot {
	s := m.Snapshot()
	return Snapshot{CanvasID: m.Document().CanvasID(), Version: s.Version, Nodes: s.Nodes, Edges: s.Edges}
}

// Validate checks the uniqueness invariants of the snapshot.
func (s Snapshot) Validate() error {
	return canvas.Validate(s.Nodes, s.Edges)
}

// Hydrate creates a document seeded with the snapshot. Options are applied
// after the state, so callers may add a logger or client id.
func Hydrate(s Snapshot, opts ...document.Option) (*document.Document, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	opts = append([]document.Option{document.WithState(s.Nodes, s.Edges)}, opts...)
	return document.New(s.CanvasID, opts...), nil
}

// Marshal encodes a snapshot as indented JSON.
func Marshal(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(s, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes and validates a snapshot.
func Unmarshal(data []byte) (Snapshot, error) {
	return Read(bytes.NewReader(data))
}

// Write encodes a snapshot to w.
func Write(s Snapshot, w io.Writer) error {
	if s.Nodes == nil {
		s.Nodes = []canvas.Node{}
	}
	if s.Edges == nil {
		s.Edges = []canvas.Edge{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// Read decodes a snapshot from r and validates it.
func Read(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, cgerrors.Wrap(cgerrors.ErrCodeInvalidInput, err, "decode canvas")
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// WriteFile writes a snapshot to path with 0644 permissions.
func WriteFile(s Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(s, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads and validates a snapshot file.
func ReadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
