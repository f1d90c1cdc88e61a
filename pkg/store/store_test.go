package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
)

func sample(id string) graph.Snapshot {
	return graph.Snapshot{
		CanvasID: id,
		Version:  3,
		Nodes: []canvas.Node{
			{ID: "a", Type: canvas.NodeTypeMemo, EntityID: "e-a", Position: canvas.Position{X: 10, Y: 20}},
			{ID: "b", Type: canvas.NodeTypeMemo, EntityID: "e-b", Position: canvas.Position{X: 410, Y: 20}},
		},
		Edges: []canvas.Edge{canvas.NewEdge("a", "b")},
	}
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	want := sample("c1")
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.Nodes[0].Position.X = 99
	require.NoError(t, s.Save(ctx, want))
	got, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.Nodes[0].Position.X)

	require.NoError(t, s.Delete(ctx, "c1"))
	_, err = s.Load(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "c1"))

	assert.Error(t, s.Save(ctx, graph.Snapshot{}))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exercise(t, s)
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	snap := sample("c1")
	require.NoError(t, s.Save(ctx, snap))

	snap.Nodes[0].EntityID = "changed"
	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "e-a", got.Nodes[0].EntityID)

	got.Nodes[1].EntityID = "changed"
	again, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "e-b", again.Nodes[1].EntityID)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	exercise(t, s)
}

func TestFileStorePermissionsAndList(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "canvases")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Path())

	require.NoError(t, s.Save(ctx, sample("one")))
	require.NoError(t, s.Save(ctx, sample("two")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	info, err := os.Stat(filepath.Join(dir, "one.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, ids)
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"../escape", "a/b", `a\b`, ".."} {
		snap := sample(id)
		assert.Error(t, s.Save(ctx, snap), id)
		_, err := s.Load(ctx, id)
		assert.Error(t, err, id)
		assert.NotErrorIs(t, err, ErrNotFound, id)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{nope"), 0o600))

	_, err = s.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
