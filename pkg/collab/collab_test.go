package collab

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/controller"
	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/store"
)

const wait = 2 * time.Second

func quiet() *log.Logger { return log.New(io.Discard) }

func open(t *testing.T, tr Transport, st store.Store, client string) *Session {
	t.Helper()
	s, err := Open(context.Background(), "c1", tr, st,
		WithLogger(quiet()),
		WithDocumentOptions(document.WithClientID(client)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "canvas:abc:updates", Channel("abc"))
}

func TestMemoryTransportFanOut(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	defer tr.Close()

	a, cancelA, err := tr.Subscribe(ctx, "c1")
	require.NoError(t, err)
	b, cancelB, err := tr.Subscribe(ctx, "c1")
	require.NoError(t, err)
	other, cancelOther, err := tr.Subscribe(ctx, "c2")
	require.NoError(t, err)
	defer cancelOther()
	assert.Equal(t, 2, tr.Subscribers("c1"))

	sent := document.Update{
		CanvasID: "c1",
		Origin:   "x",
		Seq:      1,
		NodeOps: []document.NodeOp{{
			Kind:  document.OpInsert,
			Items: []canvas.Node{{ID: "n", Type: canvas.NodeTypeMemo, EntityID: "m", Data: canvas.Payload{Metadata: canvas.Metadata{"k": "v"}}}},
		}},
	}
	require.NoError(t, tr.Publish(ctx, "c1", sent))

	gotA := <-a
	gotB := <-b
	assert.Equal(t, sent, gotA)
	assert.Equal(t, sent, gotB)

	gotA.NodeOps[0].Items[0].Data.Metadata["k"] = "changed"
	assert.Equal(t, "v", gotB.NodeOps[0].Items[0].Data.Metadata["k"])
	assert.Empty(t, other)

	cancelA()
	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Subscribers("c1"))
	cancelA()

	require.NoError(t, tr.Close())
	_, ok = <-b
	assert.False(t, ok)
	cancelB()

	err = tr.Publish(ctx, "c1", sent)
	assert.True(t, cgerrors.Is(err, cgerrors.ErrCodeTransport))
	_, _, err = tr.Subscribe(ctx, "c1")
	assert.Error(t, err)
}

func TestMemoryTransportPublishHonorsContext(t *testing.T) {
	tr := NewMemoryTransport()
	defer tr.Close()
	_, cancel, err := tr.Subscribe(context.Background(), "c1")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < subscriptionBuffer; i++ {
		require.NoError(t, tr.Publish(context.Background(), "c1", document.Update{Seq: uint64(i)}))
	}
	ctx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	err = tr.Publish(ctx, "c1", document.Update{})
	assert.True(t, cgerrors.Is(err, cgerrors.ErrCodeTransport))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionsReplicate(t *testing.T) {
	tr := NewMemoryTransport()
	defer tr.Close()
	st := store.NewMemoryStore()

	a := open(t, tr, st, "client-a")
	b := open(t, tr, st, "client-b")

	n, err := a.Controller().AddNode(controller.NodeSpec{ID: "n1", Type: canvas.NodeTypeDocument, EntityID: "d1"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := b.Controller().Mirror().Node("n1")
		return ok
	}, wait, 5*time.Millisecond)

	got, _ := b.Controller().Mirror().Node("n1")
	assert.Equal(t, n.Position, got.Position)

	require.NoError(t, b.Controller().MoveNode("n1", canvas.Position{X: 7, Y: 9}))
	require.Eventually(t, func() bool {
		moved, _ := a.Controller().Mirror().Node("n1")
		return moved.Position == canvas.Position{X: 7, Y: 9}
	}, wait, 5*time.Millisecond)

	// a committed once locally and applied b's move once; its own echo is dropped.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(2), a.Document().Seq())
}

func TestSessionLoadsAndPersists(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	defer tr.Close()
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(ctx, graph.Snapshot{
		CanvasID: "c1",
		Nodes:    []canvas.Node{{ID: "a", Type: canvas.NodeTypeDocument, EntityID: "d1", Position: canvas.Position{X: 5, Y: 5}}},
	}))

	s, err := Open(ctx, "c1", tr, st, WithLogger(quiet()))
	require.NoError(t, err)
	assert.Len(t, s.Controller().Nodes(), 1)
	assert.Equal(t, "c1", s.CanvasID())

	require.NoError(t, s.Controller().MoveNode("a", canvas.Position{X: 50, Y: 60}))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 0, tr.Subscribers("c1"))

	snap, err := st.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, canvas.Position{X: 50, Y: 60}, snap.Nodes[0].Position)
}

func TestSessionPeriodicFlush(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	defer tr.Close()
	st := store.NewMemoryStore()

	s, err := Open(ctx, "c1", tr, st, WithLogger(quiet()), WithFlushInterval(5*time.Millisecond))
	require.NoError(t, err)
	defer s.Close(ctx)

	_, err = s.Controller().AddNode(controller.NodeSpec{Type: canvas.NodeTypeMemo, EntityID: "m1"}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := st.Load(ctx, "c1")
		return err == nil && len(snap.Nodes) == 1
	}, wait, 5*time.Millisecond)
}

type failingStore struct{ store.Store }

func (failingStore) Load(context.Context, string) (graph.Snapshot, error) {
	return graph.Snapshot{}, io.ErrUnexpectedEOF
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	defer tr.Close()

	_, err := Open(ctx, "", tr, store.NewMemoryStore())
	assert.True(t, cgerrors.Is(err, cgerrors.ErrCodeInvalidInput))

	_, err = Open(ctx, "c1", tr, failingStore{}, WithLogger(quiet()))
	assert.True(t, cgerrors.Is(err, cgerrors.ErrCodeStorage))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransport()
	defer tr.Close()
	st := store.NewMemoryStore()
	r := NewRegistry(tr, st, WithLogger(quiet()))

	var wg sync.WaitGroup
	got := make([]*Session, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Get(ctx, "c1")
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()
	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, tr.Subscribers("c1"))

	_, err := r.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, r.IDs())

	_, ok := r.Lookup("c2")
	assert.True(t, ok)
	require.NoError(t, r.Release(ctx, "c2"))
	_, ok = r.Lookup("c2")
	assert.False(t, ok)
	require.NoError(t, r.Release(ctx, "c2"))

	require.NoError(t, r.FlushAll(ctx))
	_, err = st.Load(ctx, "c1")
	assert.NoError(t, err)

	require.NoError(t, r.Close(ctx))
	assert.Empty(t, r.IDs())
	_, err = r.Get(ctx, "c3")
	assert.Error(t, err)
}

func TestRedisTransportUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := NewRedisTransport(ctx, RedisConfig{Addr: "127.0.0.1:1"}, quiet())
	require.Error(t, err)
	assert.True(t, cgerrors.Is(err, cgerrors.ErrCodeTransport))
}
