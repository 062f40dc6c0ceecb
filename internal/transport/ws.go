package transport

import (
	"net/http"
	"time"

	"github.com/agentctx/platform/internal/agentruntime"
	"github.com/agentctx/platform/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsHeartbeatInterval = 15 * time.Second

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsRunRequest struct {
	AgentID       string `json:"agent_id"`
	UserID        string `json:"user_id"`
	InputContent  string `json:"input_content"`
	WorkingSource string `json:"working_source"`
}

type wsOutMessage struct {
	Type string `json:"type"`

	// progress
	Step        string         `json:"step,omitempty"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`

	// agent_thinking
	ThinkingContent string `json:"thinking_content,omitempty"`

	// agent_response
	Delta string `json:"delta,omitempty"`

	// tool_call
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`

	// error
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`

	// complete
	Message string `json:"message,omitempty"`
}

// wsConn wraps the websocket connection with the mandatory 15s idle
// heartbeat: any send resets the timer, an idle gap fires one.
type wsConn struct {
	conn  *websocket.Conn
	timer *time.Timer
	done  chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	w := &wsConn{conn: conn, done: make(chan struct{})}
	w.timer = time.AfterFunc(wsHeartbeatInterval, w.sendHeartbeat)
	return w
}

func (w *wsConn) sendHeartbeat() {
	select {
	case <-w.done:
		return
	default:
	}
	_ = w.conn.WriteJSON(wsOutMessage{Type: "heartbeat"})
	w.timer.Reset(wsHeartbeatInterval)
}

func (w *wsConn) send(msg wsOutMessage) error {
	w.timer.Reset(wsHeartbeatInterval)
	return w.conn.WriteJSON(msg)
}

func (w *wsConn) close() {
	close(w.done)
	w.timer.Stop()
	_ = w.conn.Close()
}

// handleAgentRunWS upgrades to a WebSocket and drives one agent turn,
// streaming agentruntime.TurnEvent values as wire protocol messages.
func (s *Server) handleAgentRunWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}
	w := newWSConn(conn)
	defer w.close()

	var req wsRunRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = w.send(wsOutMessage{Type: "error", ErrorMessage: "invalid run request: " + err.Error(), ErrorType: "validation"})
		return
	}
	workingSource := entity.WorkingSource(req.WorkingSource)
	if workingSource == "" {
		workingSource = entity.SourceChat
	}

	ctx := c.Request.Context()
	events := make(chan agentruntime.TurnEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.deps.Runtime.RunTurn(ctx, agentruntime.TurnInput{
			AgentID:       req.AgentID,
			UserID:        req.UserID,
			InputContent:  req.InputContent,
			WorkingSource: workingSource,
		}, events)
	}()

	for ev := range events {
		if msg, ok := turnEventToWS(ev); ok {
			if err := w.send(msg); err != nil {
				return
			}
		}
	}

	if runErr := <-errCh; runErr != nil {
		_ = w.send(wsOutMessage{Type: "error", ErrorMessage: runErr.Error(), ErrorType: "internal"})
		return
	}
}

func turnEventToWS(ev agentruntime.TurnEvent) (wsOutMessage, bool) {
	switch ev.Kind {
	case agentruntime.TurnProgress:
		return wsOutMessage{Type: "progress", Step: "run", Description: ev.Text}, true
	case agentruntime.TurnAgentThinking:
		return wsOutMessage{Type: "agent_thinking", ThinkingContent: ev.Text}, true
	case agentruntime.TurnAgentResponse:
		return wsOutMessage{Type: "agent_response", Delta: ev.Text}, true
	case agentruntime.TurnToolCall:
		return wsOutMessage{Type: "tool_call", ToolName: ev.ToolName, ToolOutput: ev.Output}, true
	case agentruntime.TurnError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return wsOutMessage{Type: "error", ErrorMessage: msg, ErrorType: "agent"}, true
	case agentruntime.TurnComplete:
		return wsOutMessage{Type: "complete", Message: ev.Text}, true
	default:
		return wsOutMessage{}, false
	}
}
