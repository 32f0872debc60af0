// Package tasks implements the durable scheduler: cron, interval, and
// one-shot triggers persisted with their run history, dispatched through
// pluggable action executors.
package tasks

import (
	"strings"
	"time"
)

// TaskStatus enables or disables a task without deleting its history.
type TaskStatus string

const (
	TaskStatusActive   TaskStatus = "active"
	TaskStatusDisabled TaskStatus = "disabled"
)

// ExecutionStatus tracks one run of a task.
type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
)

// ActionType selects how a due task is dispatched.
type ActionType string

const (
	// ActionPrompt routes the task's prompt through the orchestrator as
	// a synthetic request on the scheduler channel.
	ActionPrompt ActionType = "prompt"
	// ActionTool bypasses the planner and invokes a tool directly.
	ActionTool ActionType = "tool"
	// ActionNotify sends the prompt text to a channel adapter.
	ActionNotify ActionType = "notify"
	// ActionWebhook POSTs the prompt to a URL.
	ActionWebhook ActionType = "webhook"
)

// TaskConfig carries the action descriptor beyond the prompt itself.
type TaskConfig struct {
	Action    ActionType `json:"action,omitempty"` // defaults to prompt
	ToolName  string     `json:"tool_name,omitempty"`
	ToolArgs  string     `json:"tool_args,omitempty"` // JSON-encoded
	Channel   string     `json:"channel,omitempty"`
	ChannelID string     `json:"channel_id,omitempty"`
	URL       string     `json:"url,omitempty"`
	// Immediate fires interval tasks once at registration.
	Immediate bool `json:"immediate,omitempty"`
}

// ScheduledTask is one durable scheduler entry.
type ScheduledTask struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	AgentID      string         `json:"agent_id,omitempty"`
	Schedule     string         `json:"schedule"` // cron expr, "@every <dur>", or "@at <RFC3339>"
	Timezone     string         `json:"timezone,omitempty"`
	Prompt       string         `json:"prompt"`
	Priority     int            `json:"priority,omitempty"`
	Config       TaskConfig     `json:"config,omitempty"`
	Status       TaskStatus     `json:"status"`
	MaxRetries   int            `json:"max_retries,omitempty"`
	LastRunAt    *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt    time.Time      `json:"next_run_at"`
	RunCount     int            `json:"run_count"`
	FailureCount int            `json:"failure_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TaskExecution is one append-only history row.
type TaskExecution struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	Status     ExecutionStatus `json:"status"`
	Result     string          `json:"result,omitempty"`
	Attempt    int             `json:"attempt"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

const oneShotPrefix = "@at "

// ParseOneShotAt recognises the "@at <RFC3339>" one-shot schedule form
// and returns its instant.
func ParseOneShotAt(schedule string) (time.Time, bool) {
	trimmed := strings.TrimSpace(schedule)
	if !strings.HasPrefix(trimmed, oneShotPrefix) {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(trimmed, oneShotPrefix)))
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}
