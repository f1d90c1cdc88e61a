package mirror

import (
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
)

func newDoc() *document.Document {
	return document.New("canvas-1", document.WithLogger(log.New(io.Discard)))
}

func memo(id string) canvas.Node {
	return canvas.Node{ID: id, Type: canvas.NodeTypeMemo, EntityID: id}
}

func TestBindCopiesCurrentState(t *testing.T) {
	doc := document.New("canvas-1",
		document.WithLogger(log.New(io.Discard)),
		document.WithState([]canvas.Node{memo("a")}, nil))
	m := Bind(doc)
	defer m.Close()

	assert.Equal(t, []string{"a"}, canvas.NodeIDs(m.Nodes()))
	assert.Zero(t, m.Version())
}

func TestMirrorAtomicWithEdges(t *testing.T) {
	doc := newDoc()
	m := Bind(doc)
	defer m.Close()

	var snaps []Snapshot
	m.OnChange(func(s Snapshot) { snaps = append(snaps, s) })

	require.NoError(t, doc.Transact(func(tx *document.Tx) error {
		if err := tx.InsertNodes(memo("a"), memo("b")); err != nil {
			return err
		}
		return tx.InsertEdges(canvas.NewEdge("a", "b"))
	}))

	require.Len(t, snaps, 1, "one commit, one mirror change")
	assert.Len(t, snaps[0].Nodes, 2)
	assert.Len(t, snaps[0].Edges, 1)
	assert.Equal(t, uint64(1), m.Version())

	n, ok := m.Find(canvas.Filter{Type: canvas.NodeTypeMemo, EntityID: "b"})
	require.True(t, ok)
	assert.Equal(t, "b", n.ID)
}

func TestMirrorNeverTorn(t *testing.T) {
	doc := newDoc()
	m := Bind(doc)
	defer m.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := m.Snapshot()
			assert.Empty(t, canvas.DanglingEdges(s.Nodes, s.Edges))
		}
	}()

	for i := range 50 {
		src, dst := memo(string(rune('A'+i))+"1"), memo(string(rune('A'+i))+"2")
		require.NoError(t, doc.Transact(func(tx *document.Tx) error {
			if err := tx.InsertNodes(src, dst); err != nil {
				return err
			}
			return tx.InsertEdges(canvas.NewEdge(src.ID, dst.ID))
		}))
	}
	close(stop)
	wg.Wait()
	assert.Len(t, m.Edges(), 50)
}

func TestMirrorCloseStopsUpdates(t *testing.T) {
	doc := newDoc()
	m := Bind(doc)
	m.Close()

	require.NoError(t, doc.Transact(func(tx *document.Tx) error {
		return tx.InsertNodes(memo("a"))
	}))
	assert.Empty(t, m.Nodes())
	assert.Empty(t, doc.Observers())
}

func TestMirrorReadsAreCopies(t *testing.T) {
	doc := newDoc()
	m := Bind(doc)
	defer m.Close()
	require.NoError(t, doc.Transact(func(tx *document.Tx) error {
		return tx.InsertNodes(memo("a"))
	}))

	nodes := m.Nodes()
	nodes[0].Position.X = 42
	got, ok := m.Node("a")
	require.True(t, ok)
	assert.Zero(t, got.Position.X)
}
