// Package gateway wires the execution substrate together and serves the
// HTTP/WS surface.
//
// ws.go implements the /ws control plane: JSON frames with a
// discriminator (request, response, event). The first request must be
// connect; chat.send admits through the shared LaneManager so WS
// traffic obeys the same per-session serialisation as REST, and
// execution events stream from the event bus.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cratos-run/cratos/internal/agent"
	"github.com/cratos-run/cratos/internal/multiagent"
	"github.com/cratos-run/cratos/internal/sessions"
	"github.com/cratos-run/cratos/pkg/models"
)

const wsProtocolVersion = 1

// WS error codes from the external-interface contract.
const (
	wsErrUnauthorized  = "UNAUTHORIZED"
	wsErrForbidden     = "FORBIDDEN"
	wsErrNotConnected  = "NOT_CONNECTED"
	wsErrUnknownMethod = "UNKNOWN_METHOD"
	wsErrInvalidParams = "INVALID_PARAMS"
	wsErrNotFound      = "NOT_FOUND"
	wsErrInternal      = "INTERNAL_ERROR"
)

type wsFrame struct {
	Frame  string          `json:"frame"` // request, response, or event
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *wsError        `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   any             `json:"data,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsHandler struct {
	server   *Server
	upgrader websocket.Upgrader
}

func (s *Server) newWSHandler() http.Handler {
	return &wsHandler{
		server: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// wsConn is one live WebSocket session.
type wsConn struct {
	server *Server
	conn   *websocket.Conn
	send   chan wsFrame
	ctx    context.Context
	cancel context.CancelFunc

	connected bool
	user      *models.User
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{
		server: h.server,
		conn:   conn,
		send:   make(chan wsFrame, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.writeLoop()
	c.readLoop()
	cancel()
	_ = conn.Close()
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// enqueue drops the frame when the send buffer is full: one slow client
// must never block the publisher.
func (c *wsConn) enqueue(frame wsFrame) {
	select {
	case c.send <- frame:
	default:
		c.server.metrics.EventsDropped.Inc()
	}
}

func (c *wsConn) respond(id string, result any) {
	c.enqueue(wsFrame{Frame: "response", ID: id, Result: result})
}

func (c *wsConn) fail(id, code, message string) {
	c.enqueue(wsFrame{Frame: "response", ID: id, Error: &wsError{Code: code, Message: message}})
}

func (c *wsConn) readLoop() {
	for {
		var frame wsFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Frame != "" && frame.Frame != "request" {
			continue
		}
		if !c.connected && frame.Method != "connect" {
			c.fail(frame.ID, wsErrNotConnected, "first request must be connect")
			continue
		}
		c.handle(frame)
	}
}

func (c *wsConn) handle(frame wsFrame) {
	switch frame.Method {
	case "connect":
		c.handleConnect(frame)
	case "chat.send":
		c.handleChatSend(frame)
	case "chat.cancel":
		c.handleChatCancel(frame)
	case "approval.respond":
		c.handleApprovalRespond(frame)
	case "approval.list":
		c.respond(frame.ID, map[string]any{"requests": c.server.approvals.Pending()})
	case "session.list":
		c.handleSessionList(frame)
	case "session.history":
		c.handleSessionHistory(frame)
	default:
		c.fail(frame.ID, wsErrUnknownMethod, "unknown method "+frame.Method)
	}
}

func (c *wsConn) handleConnect(frame wsFrame) {
	var params struct {
		Token           string `json:"token"`
		Role            string `json:"role"`
		ProtocolVersion int    `json:"protocol_version"`
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		c.fail(frame.ID, wsErrInvalidParams, "invalid connect params")
		return
	}
	if params.ProtocolVersion != 0 && params.ProtocolVersion != wsProtocolVersion {
		c.fail(frame.ID, wsErrInvalidParams, "unsupported protocol version")
		return
	}

	if c.server.authService.Enabled() {
		token := strings.TrimPrefix(strings.TrimSpace(params.Token), "cratos_")
		user, err := c.server.authService.ValidateAPIKey(token)
		if err != nil {
			user, err = c.server.authService.ValidateJWT(token)
		}
		if err != nil {
			c.fail(frame.ID, wsErrUnauthorized, "invalid token")
			return
		}
		c.user = user
	}

	c.connected = true
	go c.streamEvents()
	c.respond(frame.ID, map[string]any{
		"protocol_version": wsProtocolVersion,
		"methods": []string{
			"connect", "chat.send", "chat.cancel",
			"approval.respond", "approval.list",
			"session.list", "session.history",
		},
	})
}

// streamEvents forwards the event bus to the client until disconnect.
func (c *wsConn) streamEvents() {
	sub := c.server.bus.Subscribe()
	defer sub.Unsubscribe()
	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			c.enqueue(wsFrame{Frame: "event", Event: string(event.Kind), Data: map[string]any{
				"execution_id": event.ExecutionID,
				"sequence_num": event.SequenceNum,
				"payload":      event.Payload,
			}})
		}
	}
}

func (c *wsConn) caller() sessions.Caller {
	if c.user == nil {
		return sessions.Caller{UserID: "anon"}
	}
	return sessions.Caller{UserID: c.user.ID, Admin: c.user.HasScope(models.ScopeAdmin)}
}

func (c *wsConn) handleChatSend(frame wsFrame) {
	var params struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil || strings.TrimSpace(params.Text) == "" {
		c.fail(frame.ID, wsErrInvalidParams, "text is required")
		return
	}
	lanes := c.server.laneManager()
	caller := c.caller()

	sessionID := params.SessionID
	if sessionID == "" {
		summary, err := lanes.Create(c.ctx, caller, "")
		if err != nil {
			c.fail(frame.ID, wsErrInternal, err.Error())
			return
		}
		sessionID = summary.ID
	}

	// @persona mentions route through the dispatcher instead of the
	// single-agent lane path.
	if strings.Contains(params.Text, "@") && c.server.dispatcher != nil {
		if responses, err := c.server.dispatcher.Dispatch(c.ctx, &models.Session{ID: sessionID, OwnerUserID: caller.UserID}, params.Text, c.server.config.Session.DefaultAgentID); err == nil {
			c.respond(frame.ID, map[string]any{"session_id": sessionID, "responses": responses})
			return
		} else if !isDispatchFallthrough(err) {
			c.fail(frame.ID, wsErrInvalidParams, err.Error())
			return
		}
	}

	result, err := lanes.Send(c.ctx, caller, sessionID, params.Text)
	if err != nil {
		c.failLaneError(frame.ID, err)
		return
	}
	c.respond(frame.ID, map[string]any{
		"session_id":     sessionID,
		"started":        result.Started,
		"queue_position": result.Position,
	})
	if result.Started {
		go c.server.driveLane(sessionID, result.ExecutionID, result.Text, nil)
	}
}

// isDispatchFallthrough reports dispatcher outcomes that should fall
// back to the plain single-agent path rather than fail the request:
// nothing resolved to a registered persona (an "@" in ordinary prose,
// an email address) or no default persona is configured.
func isDispatchFallthrough(err error) bool {
	if err == multiagent.ErrNoAgentMatched {
		return true
	}
	var notFound *multiagent.AgentNotFoundError
	return errors.As(err, &notFound)
}

func (c *wsConn) handleChatCancel(frame wsFrame) {
	var params struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		c.fail(frame.ID, wsErrInvalidParams, "session_id is required")
		return
	}
	cancelled, err := c.server.laneManager().Cancel(c.ctx, c.caller(), params.SessionID, func(executionID string) {
		c.server.orchestrator.Cancel(executionID)
	})
	if err != nil {
		c.failLaneError(frame.ID, err)
		return
	}
	c.respond(frame.ID, map[string]any{"cancelled": cancelled})
}

func (c *wsConn) handleApprovalRespond(frame wsFrame) {
	var params struct {
		RequestID string `json:"request_id"`
		Nonce     string `json:"nonce"`
		Approved  bool   `json:"approved"`
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil || params.RequestID == "" {
		c.fail(frame.ID, wsErrInvalidParams, "request_id and nonce are required")
		return
	}
	caller := c.caller()
	req, err := c.server.approvals.Respond(params.RequestID, caller.UserID, params.Nonce, params.Approved, caller.Admin)
	if err != nil {
		code := wsErrForbidden
		switch err {
		case agent.ErrApprovalNotFound:
			code = wsErrNotFound
		case agent.ErrInvalidNonce, agent.ErrApprovalExpired, agent.ErrAlreadyResolved:
			code = wsErrInvalidParams
		}
		c.fail(frame.ID, code, err.Error())
		return
	}
	c.respond(frame.ID, map[string]any{"request": req})
}

func (c *wsConn) handleSessionList(frame wsFrame) {
	list, err := c.server.laneManager().List(c.ctx, c.caller())
	if err != nil {
		c.failLaneError(frame.ID, err)
		return
	}
	c.respond(frame.ID, map[string]any{"sessions": list})
}

func (c *wsConn) handleSessionHistory(frame wsFrame) {
	var params struct {
		SessionID string `json:"session_id"`
		Limit     int    `json:"limit"`
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil || params.SessionID == "" {
		c.fail(frame.ID, wsErrInvalidParams, "session_id is required")
		return
	}
	if _, err := c.server.laneManager().Get(c.ctx, c.caller(), params.SessionID); err != nil {
		c.failLaneError(frame.ID, err)
		return
	}
	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	history, err := c.server.store.GetHistory(c.ctx, params.SessionID, limit)
	if err != nil {
		c.fail(frame.ID, wsErrInternal, err.Error())
		return
	}
	c.respond(frame.ID, map[string]any{"messages": history})
}

func (c *wsConn) failLaneError(id string, err error) {
	switch err {
	case sessions.ErrNotFound:
		c.fail(id, wsErrNotFound, "session not found")
	case sessions.ErrUnauthorized:
		c.fail(id, wsErrForbidden, "not the session owner")
	case sessions.ErrInvalidState:
		c.fail(id, wsErrInvalidParams, "session is closed")
	default:
		c.fail(id, wsErrInternal, err.Error())
	}
}
