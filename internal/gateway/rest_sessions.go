// Package gateway provides the main Cratos gateway server.
//
// rest_sessions.go implements the /api/v1/sessions REST surface: session
// CRUD plus the lane-serialised message admission described for the
// session manager (one active execution per session, further input queued
// in arrival order). Real-time progress for an admitted message streams
// separately over the event bus / WebSocket gateway; this surface only
// ever returns {started, queue_position}.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cratos-run/cratos/internal/sessions"
)

type sessionsAPI struct {
	server *Server
	lanes  *sessions.LaneManager
}

func (s *Server) mountSessionsAPI(mux *http.ServeMux) {
	if s.store == nil {
		return
	}
	api := &sessionsAPI{server: s, lanes: s.laneManager()}
	wrap := httpAuthMiddleware(s.authService, s.logger)
	mux.Handle("/api/v1/sessions", wrap(http.HandlerFunc(api.handleCollection)))
	mux.Handle("/api/v1/sessions/", wrap(http.HandlerFunc(api.handleItem)))
}

func (a *sessionsAPI) handleCollection(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		summary, err := a.lanes.Create(r.Context(), caller, body.Name)
		if err != nil {
			writeLaneError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, summary)
	case http.MethodGet:
		list, err := a.lanes.List(r.Context(), caller)
		if err != nil {
			writeLaneError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *sessionsAPI) handleItem(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	sessionID := parts[0]
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "session id required")
		return
	}
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		a.handleGet(w, r, caller, sessionID)
	case action == "" && r.Method == http.MethodDelete:
		a.handleDelete(w, r, caller, sessionID)
	case action == "messages" && r.Method == http.MethodPost:
		a.handleSendMessage(w, r, caller, sessionID)
	case action == "cancel" && r.Method == http.MethodPost:
		a.handleCancel(w, r, caller, sessionID)
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (a *sessionsAPI) handleGet(w http.ResponseWriter, r *http.Request, caller sessions.Caller, id string) {
	summary, err := a.lanes.Get(r.Context(), caller, id)
	if err != nil {
		writeLaneError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *sessionsAPI) handleDelete(w http.ResponseWriter, r *http.Request, caller sessions.Caller, id string) {
	if err := a.lanes.Delete(r.Context(), caller, id); err != nil {
		writeLaneError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *sessionsAPI) handleCancel(w http.ResponseWriter, r *http.Request, caller sessions.Caller, id string) {
	cancelled, err := a.lanes.Cancel(r.Context(), caller, id, func(executionID string) {
		a.server.orchestrator.Cancel(executionID)
	})
	if err != nil {
		writeLaneError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (a *sessionsAPI) handleSendMessage(w http.ResponseWriter, r *http.Request, caller sessions.Caller, id string) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := a.lanes.Send(r.Context(), caller, id, body.Text)
	if err != nil {
		writeLaneError(w, err)
		return
	}

	if result.Started {
		go a.server.driveLane(id, result.ExecutionID, result.Text, nil)
		writeJSON(w, http.StatusAccepted, map[string]any{"started": true, "queue_position": 0})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": false, "queue_position": result.Position})
}

func writeLaneError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, sessions.ErrUnauthorized):
		writeJSONError(w, http.StatusForbidden, "unauthorized")
	case errors.Is(err, sessions.ErrInvalidState):
		writeJSONError(w, http.StatusConflict, "invalid session state")
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
