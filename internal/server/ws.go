package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matzehuels/canvasgraph/pkg/document"
	"github.com/matzehuels/canvasgraph/pkg/graph"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// Message types sent on the websocket stream.
const (
	MessageSnapshot = "snapshot"
	MessageUpdate   = "update"
)

// StreamMessage is one frame of the update stream. The first frame is
// always a snapshot; every committed update follows.
type StreamMessage struct {
	Type     string           `json:"type"`
	Snapshot *graph.Snapshot  `json:"snapshot,omitempty"`
	Update   *document.Update `json:"update,omitempty"`
}

// stream upgrades to a websocket and relays every update of the canvas.
// Clients only read; inbound frames other than control frames are ignored.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Subscribe before the snapshot so no commit falls in between.
	updates, unsubscribe, err := s.transport.Subscribe(r.Context(), sess.CanvasID())
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()
	logger := s.logger.With("canvas", sess.CanvasID(), "remote", r.RemoteAddr)
	logger.Debug("stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("stream read", "err", err)
				}
				return
			}
		}
	}()

	snap := graph.FromMirror(sess.Controller().Mirror())
	if err := write(conn, StreamMessage{Type: MessageSnapshot, Snapshot: &snap}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "canvas closed"), time.Now().Add(writeWait))
				return
			}
			if err := write(conn, StreamMessage{Type: MessageUpdate, Update: &u}); err != nil {
				logger.Debug("stream write", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("stream closed")
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			return
		}
	}
}

func write(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
