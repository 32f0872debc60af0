// Package gateway provides the main Cratos gateway server.
//
// rest_scheduler.go implements the /api/v1/scheduler/tasks REST surface
// over the durable scheduled-task store described for the scheduler
// component: cron / one-shot triggers, each persisted with its own
// run history.
package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-run/cratos/internal/tasks"
)

type schedulerAPI struct {
	server *Server
}

func (s *Server) mountSchedulerAPI(mux *http.ServeMux) {
	if s.taskStore == nil {
		return
	}
	api := &schedulerAPI{server: s}
	wrap := httpAuthMiddleware(s.authService, s.logger)
	mux.Handle("/api/v1/scheduler/tasks", wrap(http.HandlerFunc(api.handleCollection)))
	mux.Handle("/api/v1/scheduler/tasks/", wrap(http.HandlerFunc(api.handleItem)))
}

type schedulerTaskRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	AgentID     string           `json:"agent_id,omitempty"`
	Schedule    string           `json:"schedule"`
	Timezone    string           `json:"timezone,omitempty"`
	Prompt      string           `json:"prompt"`
	Priority    int              `json:"priority,omitempty"`
	Enabled     *bool            `json:"enabled,omitempty"`
	Config      tasks.TaskConfig `json:"config,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

func (a *schedulerAPI) handleCollection(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerFromRequest(r); !ok && a.server.authService != nil && a.server.authService.Enabled() {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch r.Method {
	case http.MethodGet:
		opts := tasks.ListTasksOptions{IncludeDisabled: true, Limit: 200}
		list, err := a.server.taskStore.ListTasks(r.Context(), opts)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		a.handleCreate(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *schedulerAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req schedulerTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Schedule) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "name, schedule, and prompt are required")
		return
	}

	now := time.Now()
	nextRun := now
	if at, ok := tasks.ParseOneShotAt(req.Schedule); ok {
		nextRun = at
	} else if a.server.taskScheduler != nil {
		computed, err := a.server.taskScheduler.ComputeNextRun(req.Schedule, req.Timezone, now)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid schedule: "+err.Error())
			return
		}
		nextRun = computed
	}

	agentID := req.AgentID
	if agentID == "" && a.server.config != nil {
		agentID = a.server.config.Session.DefaultAgentID
	}

	task := &tasks.ScheduledTask{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		AgentID:     agentID,
		Schedule:    req.Schedule,
		Timezone:    req.Timezone,
		Prompt:      req.Prompt,
		Priority:    req.Priority,
		Config:      req.Config,
		Status:      tasks.TaskStatusActive,
		NextRunAt:   nextRun,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    req.Metadata,
	}
	if req.Enabled != nil && !*req.Enabled {
		task.Status = tasks.TaskStatusDisabled
	}

	if err := a.server.taskStore.CreateTask(r.Context(), task); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (a *schedulerAPI) handleItem(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerFromRequest(r); !ok && a.server.authService != nil && a.server.authService.Enabled() {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/scheduler/tasks/")
	id = strings.Trim(id, "/")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "task id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, err := a.server.taskStore.GetTask(r.Context(), id)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, task)
	case http.MethodPut, http.MethodPatch:
		a.handleUpdate(w, r, id)
	case http.MethodDelete:
		if err := a.server.taskStore.DeleteTask(r.Context(), id); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *schedulerAPI) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	task, err := a.server.taskStore.GetTask(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}

	var req schedulerTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rescheduled := false
	if req.Name != "" {
		task.Name = req.Name
	}
	if req.Description != "" {
		task.Description = req.Description
	}
	if req.Schedule != "" && req.Schedule != task.Schedule {
		task.Schedule = req.Schedule
		rescheduled = true
	}
	if req.Timezone != "" {
		task.Timezone = req.Timezone
	}
	if req.Prompt != "" {
		task.Prompt = req.Prompt
	}
	if req.Priority != 0 {
		task.Priority = req.Priority
	}
	if req.Metadata != nil {
		task.Metadata = req.Metadata
	}
	if req.Enabled != nil {
		if *req.Enabled {
			task.Status = tasks.TaskStatusActive
		} else {
			task.Status = tasks.TaskStatusDisabled
		}
	}

	if rescheduled {
		now := time.Now()
		if at, ok := tasks.ParseOneShotAt(task.Schedule); ok {
			task.NextRunAt = at
		} else if a.server.taskScheduler != nil {
			next, err := a.server.taskScheduler.ComputeNextRun(task.Schedule, task.Timezone, now)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid schedule: "+err.Error())
				return
			}
			task.NextRunAt = next
		}
	}
	task.UpdatedAt = time.Now()

	if err := a.server.taskStore.UpdateTask(r.Context(), task); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}
