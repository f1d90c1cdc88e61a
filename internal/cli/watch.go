package cli

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/internal/server"
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/document"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/mirror"
)

var (
	watchHeaderStyle   = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	watchSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	watchCellStyle     = lipgloss.NewStyle().Foreground(colorWhite).Padding(0, 1)
)

// watchCommand creates the watch command.
func (c *CLI) watchCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "watch [canvas-id]",
		Short: "Follow a live canvas in the terminal",
		Long: `Follow a canvas served by 'canvasgraph serve'.

The watch command opens the canvas stream of a running server and shows its
nodes in a table that refreshes on every committed edit. Press q to quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), serverURL, args[0])
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "server URL (default: derived from server.addr)")

	return cmd
}

func (c *CLI) runWatch(ctx context.Context, serverURL, canvasID string) error {
	endpoint, err := streamURL(serverURL, c.Config.Server.Addr, canvasID)
	if err != nil {
		return err
	}
	loggerFromContext(ctx).Debug("connecting", "url", endpoint)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}
	defer conn.Close()

	next := func() (server.StreamMessage, error) {
		var msg server.StreamMessage
		err := conn.ReadJSON(&msg)
		return msg, err
	}
	final, err := tea.NewProgram(newWatchModel(canvasID, next), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

// streamURL builds the websocket URL of a canvas stream. An empty server
// falls back to the configured listen address on localhost.
func streamURL(serverURL, listenAddr, canvasID string) (string, error) {
	if serverURL == "" {
		host, port, err := net.SplitHostPort(listenAddr)
		if err != nil {
			return "", fmt.Errorf("server address %q: %w", listenAddr, err)
		}
		if host == "" {
			host = "localhost"
		}
		serverURL = "http://" + net.JoinHostPort(host, port)
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/canvases/" + url.PathEscape(canvasID) + "/ws"
	return u.String(), nil
}

// =============================================================================
// watchModel - live node table
// =============================================================================

type (
	streamMsg server.StreamMessage
	errMsg    struct{ err error }
)

// watchModel mirrors a remote canvas. The first stream frame seeds a local
// document; every later frame is replayed into it.
type watchModel struct {
	canvasID string
	next     func() (server.StreamMessage, error)
	doc      *document.Document
	mirror   *mirror.Mirror
	updates  int
	height   int
	err      error
}

func newWatchModel(canvasID string, next func() (server.StreamMessage, error)) watchModel {
	return watchModel{canvasID: canvasID, next: next, height: 20}
}

func (m watchModel) Init() tea.Cmd { return m.wait }

func (m watchModel) wait() tea.Msg {
	msg, err := m.next()
	if err != nil {
		return errMsg{err}
	}
	return streamMsg(msg)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-6, 5)
	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	case streamMsg:
		if err := m.apply(server.StreamMessage(msg)); err != nil {
			m.err = err
			return m, tea.Quit
		}
		return m, m.wait
	}
	return m, nil
}

func (m *watchModel) apply(msg server.StreamMessage) error {
	switch msg.Type {
	case server.MessageSnapshot:
		if msg.Snapshot == nil {
			return fmt.Errorf("snapshot frame without snapshot")
		}
		doc, err := graph.Hydrate(*msg.Snapshot)
		if err != nil {
			return err
		}
		if m.mirror != nil {
			m.mirror.Close()
		}
		m.doc, m.mirror = doc, mirror.Bind(doc)
	case server.MessageUpdate:
		if msg.Update == nil || m.doc == nil {
			return nil
		}
		m.updates++
		return m.doc.ApplyUpdate(*msg.Update)
	}
	return nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("Canvas " + m.canvasID))
	b.WriteString("\n")
	if m.mirror == nil {
		b.WriteString(StyleDim.Render("waiting for snapshot..."))
		b.WriteString("\n")
		return b.String()
	}

	snap := m.mirror.Snapshot()
	b.WriteString(StyleDim.Render(fmt.Sprintf("%d nodes · %d edges · %d updates  q quit",
		len(snap.Nodes), len(snap.Edges), m.updates)))
	b.WriteString("\n\n")

	nodes := snap.Nodes
	if len(nodes) > m.height {
		nodes = nodes[:m.height]
	}
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, nodeRow(n))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Type", "Entity", "Title", "Position").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return watchHeaderStyle.Padding(0, 1)
			}
			if row >= 0 && row < len(nodes) && nodes[row].Selected {
				return watchSelectedStyle.Padding(0, 1)
			}
			return watchCellStyle
		})
	b.WriteString(t.String())
	b.WriteString("\n")
	if hidden := len(snap.Nodes) - len(nodes); hidden > 0 {
		b.WriteString(StyleDim.Render(fmt.Sprintf("… %d more", hidden)))
		b.WriteString("\n")
	}
	return b.String()
}

func nodeRow(n canvas.Node) []string {
	marker := " "
	if n.Selected {
		marker = "▸"
	}
	title := n.Data.Title
	if title == "" {
		title = "—"
	}
	return []string{
		marker,
		n.ID,
		string(n.Type),
		n.EntityID,
		title,
		fmt.Sprintf("%.0f, %.0f", n.Position.X, n.Position.Y),
	}
}
