package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/internal/server"
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
	"github.com/matzehuels/canvasgraph/pkg/graph"
)

// run executes the command tree with args against an isolated XDG
// environment and returns what the commands printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))

	var out bytes.Buffer
	prev := stdout
	stdout = &out
	t.Cleanup(func() { stdout = prev })

	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCanvas(t *testing.T, s graph.Snapshot) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.json")
	if err := graph.WriteFile(s, path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func sampleCanvas() graph.Snapshot {
	return graph.Snapshot{
		Nodes: []canvas.Node{
			{ID: "a", Type: canvas.NodeTypeSkill, EntityID: "s1", Position: canvas.Position{X: 0, Y: 0}},
			{ID: "b", Type: canvas.NodeTypeSkillResponse, EntityID: "r1", Position: canvas.Position{X: 0, Y: 0}},
			{ID: "c", Type: canvas.NodeTypeSkillResponse, EntityID: "r2", Position: canvas.Position{X: 0, Y: 0}},
		},
		Edges: []canvas.Edge{canvas.NewEdge("a", "b"), canvas.NewEdge("a", "c")},
	}
}

func TestRootCommand(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	want := []string{"layout", "place", "relayout", "dot", "serve", "watch", "cache", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"verbose", "config"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[layout]\ndirection = \"RL\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", path, "cache", "path"); err == nil {
		t.Fatal("expected invalid direction to fail")
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    canvas.Filter
		wantErr bool
	}{
		{"skill:deploy", canvas.Filter{Type: canvas.NodeTypeSkill, EntityID: "deploy"}, false},
		{"resource:s3://bucket/key", canvas.Filter{Type: canvas.NodeTypeResource, EntityID: "s3://bucket/key"}, false},
		{"skill", canvas.Filter{}, true},
		{"skill:", canvas.Filter{}, true},
		{"widget:x", canvas.Filter{}, true},
	}
	for _, tt := range tests {
		got, err := parseFilter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseFilter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseFilter(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		server, addr, id string
		want             string
	}{
		{"", ":8080", "c1", "ws://localhost:8080/canvases/c1/ws"},
		{"", "10.0.0.2:9000", "c1", "ws://10.0.0.2:9000/canvases/c1/ws"},
		{"https://canvas.example.com/api/", ":8080", "a b", "wss://canvas.example.com/api/canvases/a%20b/ws"},
		{"http://localhost:3000", "", "x", "ws://localhost:3000/canvases/x/ws"},
	}
	for _, tt := range tests {
		got, err := streamURL(tt.server, tt.addr, tt.id)
		if err != nil {
			t.Errorf("streamURL(%q, %q) error: %v", tt.server, tt.addr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("streamURL(%q, %q, %q) = %q, want %q", tt.server, tt.addr, tt.id, got, tt.want)
		}
	}
}

func TestDerivedPath(t *testing.T) {
	if got := derivedPath("boards/roadmap.json", ".layout.json"); got != "boards/roadmap.layout.json" {
		t.Errorf("derivedPath = %q", got)
	}
	if got := canvasIDFromPath("boards/roadmap.json"); got != "roadmap" {
		t.Errorf("canvasIDFromPath = %q", got)
	}
}

func TestLayoutCommand(t *testing.T) {
	input := writeCanvas(t, sampleCanvas())

	out, err := run(t, "layout", input, "--no-cache")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if !strings.Contains(out, "Layout complete") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(derivedPath(input, ".layout.json"))
	if err != nil {
		t.Fatalf("read layout: %v", err)
	}
	l, err := graph.UnmarshalLayout(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Positions) != 3 {
		t.Fatalf("positions = %d, want 3", len(l.Positions))
	}
	if l.Positions["b"].X <= l.Positions["a"].X {
		t.Errorf("child b at %v is not right of a at %v", l.Positions["b"], l.Positions["a"])
	}
	if l.CanvasID != "board" {
		t.Errorf("canvas id = %q, want board", l.CanvasID)
	}
}

func TestLayoutCommandWrite(t *testing.T) {
	input := writeCanvas(t, sampleCanvas())

	if _, err := run(t, "layout", input, "-d", "TB", "--write", "--no-cache"); err != nil {
		t.Fatalf("layout: %v", err)
	}
	snap, err := graph.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[string]canvas.Position)
	for _, n := range snap.Nodes {
		pos[n.ID] = n.Position
	}
	if pos["b"].Y <= pos["a"].Y {
		t.Errorf("TB layout put b at %v above a at %v", pos["b"], pos["a"])
	}
	if _, err := run(t, "layout", input, "-d", "RL"); err == nil {
		t.Error("expected invalid direction to fail")
	}
}

func TestPlaceCommand(t *testing.T) {
	input := writeCanvas(t, graph.Snapshot{})

	if _, err := run(t, "place", input, "-t", "skill", "-e", "s1", "--title", "Deploy"); err != nil {
		t.Fatalf("place root: %v", err)
	}
	if _, err := run(t, "place", input, "-t", "skillResponse", "-e", "r1", "-c", "skill:s1"); err != nil {
		t.Fatalf("place child: %v", err)
	}

	snap, err := graph.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
		t.Fatalf("canvas has %d nodes and %d edges, want 2 and 1", len(snap.Nodes), len(snap.Edges))
	}
	root, child := snap.Nodes[0], snap.Nodes[1]
	if root.Data.Title != "Deploy" {
		t.Errorf("title = %q", root.Data.Title)
	}
	if child.Position.X <= root.Position.X {
		t.Errorf("child at %v is not right of its source at %v", child.Position, root.Position)
	}
	if e := snap.Edges[0]; e.Source != root.ID || e.Target != child.ID {
		t.Errorf("edge %s -> %s", e.Source, e.Target)
	}

	out, err := run(t, "place", input, "-t", "skill", "-e", "s1")
	if err != nil {
		t.Fatalf("duplicate place: %v", err)
	}
	if !strings.Contains(out, "already on the canvas") {
		t.Errorf("output = %q", out)
	}
}

func TestPlaceCommandExplicitPosition(t *testing.T) {
	input := writeCanvas(t, graph.Snapshot{})

	if _, err := run(t, "place", input, "-t", "memo", "-e", "m1", "--x", "10", "--y", "20"); err != nil {
		t.Fatalf("place: %v", err)
	}
	snap, err := graph.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Nodes[0].Position; got != (canvas.Position{X: 10, Y: 20}) {
		t.Errorf("position = %v, want (10, 20)", got)
	}
	if _, err := run(t, "place", input, "-t", "widget", "-e", "w1"); err == nil {
		t.Error("expected unknown node type to fail")
	}
}

func TestRelayoutCommand(t *testing.T) {
	input := writeCanvas(t, sampleCanvas())

	if _, err := run(t, "relayout", input, "-n", "a", "--from-root", "--no-cache"); err != nil {
		t.Fatalf("relayout: %v", err)
	}
	snap, err := graph.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[string]canvas.Position)
	for _, n := range snap.Nodes {
		pos[n.ID] = n.Position
	}
	if pos["b"] == pos["c"] {
		t.Errorf("siblings b and c still overlap at %v", pos["b"])
	}
	if _, err := run(t, "relayout", input, "-n", "ghost", "--no-cache"); err == nil {
		t.Error("expected unknown node to fail")
	}
}

func TestDotCommand(t *testing.T) {
	input := writeCanvas(t, sampleCanvas())
	output := filepath.Join(t.TempDir(), "board.dot")

	if _, err := run(t, "dot", input, "-o", output, "--detailed"); err != nil {
		t.Fatalf("dot: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "digraph") {
		t.Errorf("output does not start with digraph: %q", data)
	}
	if _, err := run(t, "dot", input, "-f", "gif"); err == nil {
		t.Error("expected unknown format to fail")
	}
}

func TestCachePath(t *testing.T) {
	out, err := run(t, "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(os.Getenv("XDG_CACHE_HOME"), appName)
	if !strings.HasPrefix(strings.TrimSpace(out), want) {
		t.Errorf("cache path = %q, want prefix %q", out, want)
	}
}

func TestWatchModel(t *testing.T) {
	snap := graph.Snapshot{
		CanvasID: "c1",
		Nodes:    []canvas.Node{{ID: "a", Type: canvas.NodeTypeSkill, EntityID: "s1", Data: canvas.Payload{Title: "Deploy"}}},
	}
	m := newWatchModel("c1", nil)
	if !strings.Contains(m.View(), "waiting") {
		t.Errorf("initial view = %q", m.View())
	}

	next, _ := m.Update(streamMsg{Type: server.MessageSnapshot, Snapshot: &snap})
	m = next.(watchModel)
	if v := m.View(); !strings.Contains(v, "Deploy") || !strings.Contains(v, "1 nodes") {
		t.Errorf("view after snapshot = %q", v)
	}

	u := document.Update{
		CanvasID: "c1",
		Origin:   "peer",
		Seq:      1,
		NodeOps: []document.NodeOp{{
			Kind:  document.OpInsert,
			Items: []canvas.Node{{ID: "b", Type: canvas.NodeTypeMemo, EntityID: "m1"}},
		}},
	}
	next, _ = m.Update(streamMsg{Type: server.MessageUpdate, Update: &u})
	m = next.(watchModel)
	if v := m.View(); !strings.Contains(v, "m1") || !strings.Contains(v, "2 nodes") || !strings.Contains(v, "1 updates") {
		t.Errorf("view after update = %q", v)
	}

	next, cmd := m.Update(errMsg{io.ErrUnexpectedEOF})
	if next.(watchModel).err == nil || cmd == nil {
		t.Error("stream error should quit with the error recorded")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, log.InfoLevel)
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("log output = %q", buf.String())
	}

	newProgress(logger).done("Laid out 3 nodes")
	if !strings.Contains(buf.String(), "Laid out 3 nodes (") {
		t.Errorf("progress output = %q", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("expected default logger without one attached")
	}
	l := log.New(io.Discard)
	if loggerFromContext(withLogger(context.Background(), l)) != l {
		t.Error("expected attached logger")
	}
}
