// Package gateway wires the execution substrate together and serves the
// HTTP/WS surface.
//
// lanes.go holds the shared lane-serialised execution path used by the
// REST sessions API and the WebSocket control plane: one LaneManager per
// server, and one helper that runs an admitted message through the
// orchestrator and then drains the session's pending queue.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-run/cratos/internal/agent"
	"github.com/cratos-run/cratos/internal/sessions"
	"github.com/cratos-run/cratos/pkg/models"
)

// laneManager returns the server's shared LaneManager, creating it on
// first use. REST and WS admissions share one instance so lane
// serialisation holds across surfaces.
func (s *Server) laneManager() *sessions.LaneManager {
	s.laneMu.Lock()
	defer s.laneMu.Unlock()
	if s.lanes == nil && s.store != nil {
		s.lanes = sessions.NewLaneManager(s.store)
	}
	return s.lanes
}

// driveLane runs admitted text through the orchestrator, then keeps
// draining the session's pending queue (lane serialisation) until it is
// empty, at which point the lane returns to Idle. emit, when non-nil,
// receives every response chunk for streaming surfaces.
func (s *Server) driveLane(sessionID, executionID, text string, emit func(executionID string, chunk agent.ResponseChunk)) {
	lanes := s.laneManager()
	for {
		s.runLaneExecution(sessionID, executionID, text, emit)

		if lanes == nil {
			return
		}
		next, err := lanes.ExecutionCompleted(context.Background(), sessionID)
		if err != nil || next == nil {
			return
		}
		executionID, text = next.ExecutionID, next.Text
	}
}

// runLaneExecution runs one admitted message to a terminal state. The
// orchestrator owns timeout and cancellation; external cancels route
// through Orchestrator.Cancel by execution id.
func (s *Server) runLaneExecution(sessionID, executionID, text string, emit func(string, agent.ResponseChunk)) {
	ctx := context.Background()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		s.logger.Error("lane execution failed to load session", "session_id", sessionID, "error", err)
		return
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Channel:   session.Channel,
		ChannelID: session.ChannelID,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
		Metadata:  map[string]any{"execution_id": executionID},
	}

	chunks, err := s.orchestrator.Process(ctx, session, msg)
	if err != nil {
		s.logger.Error("lane execution failed to start",
			"session_id", sessionID, "execution_id", executionID, "error", err)
		return
	}
	for chunk := range chunks {
		if chunk.Error != nil {
			s.logger.Warn("lane execution error",
				"session_id", sessionID, "execution_id", executionID,
				"error", agent.SanitizeErrorForUser(chunk.Error))
		}
		if emit != nil {
			emit(executionID, chunk)
		}
	}
}
