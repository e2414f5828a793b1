package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/songzhibin97/mediaflow/events"
	"github.com/songzhibin97/mediaflow/types"
	"github.com/songzhibin97/mediaflow/workflow"
)

const (
	writeWait = 10 * time.Second
	// RunError is sent instead of run_completed when the graph is rejected.
	RunError = "run_error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame of a run stream. Type is an events constant or RunError.
type StreamMessage struct {
	Type     string           `json:"type"`
	NodeID   string           `json:"nodeId,omitempty"`
	Output   any              `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Upstream string           `json:"upstream,omitempty"`
	Run      *types.RunRecord `json:"run,omitempty"`
}

// handleRunStream reads one graph request from the socket, runs it, and streams
// every node callback followed by the final record. Closing the socket cancels the run.
func (s *Server) handleRunStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	var req graphRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Debug("invalid stream request", zap.Error(err))
		_ = s.send(conn, StreamMessage{Type: RunError, Error: "invalid request: " + err.Error()})
		return
	}
	g, name, err := s.resolve(req)
	if err != nil {
		_ = s.send(conn, StreamMessage{Type: RunError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// Callbacks never run concurrently, so they can write to conn directly.
	failed := false
	write := func(msg StreamMessage) {
		if failed {
			return
		}
		if err := s.send(conn, msg); err != nil {
			failed = true
			s.logger.Warn("stream write failed, cancelling run", zap.Error(err))
			cancel()
		}
	}
	cb := workflow.Callbacks{
		OnNodeStart: func(id string) {
			write(StreamMessage{Type: events.NodeStarted, NodeID: id})
		},
		OnNodeComplete: func(id string, out any) {
			write(StreamMessage{Type: events.NodeCompleted, NodeID: id, Output: out})
		},
		OnNodeError: func(id, msg string) {
			write(StreamMessage{Type: events.NodeFailed, NodeID: id, Error: msg})
		},
		OnNodeBlocked: func(id, upstream string) {
			write(StreamMessage{Type: events.NodeBlocked, NodeID: id, Upstream: upstream})
		},
	}

	rec, err := s.execute(ctx, g, name, cb)
	if err != nil {
		write(StreamMessage{Type: RunError, Error: err.Error()})
		return
	}
	write(StreamMessage{Type: events.RunCompleted, Run: &rec})
	if !failed {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
	}
}

func (s *Server) send(conn *websocket.Conn, msg StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
