package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PromptRunner routes a task's prompt through the orchestrator as a
// synthetic request on the scheduler channel. Implemented by the gateway.
type PromptRunner interface {
	RunPrompt(ctx context.Context, agentID, taskID, prompt string) (string, error)
}

// ToolInvoker bypasses the planner and invokes one tool directly.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Notifier delivers a notification to a named channel adapter.
type Notifier interface {
	Notify(ctx context.Context, channel, channelID, text string) error
}

// ActionExecutor fans a due task out to the collaborator its action
// descriptor names.
type ActionExecutor struct {
	Prompts    PromptRunner
	Tools      ToolInvoker
	Notify     Notifier
	HTTPClient *http.Client
}

// Execute dispatches the task by action type. Prompt is the default.
func (e *ActionExecutor) Execute(ctx context.Context, task *ScheduledTask) (string, error) {
	action := task.Config.Action
	if action == "" {
		action = ActionPrompt
	}
	switch action {
	case ActionPrompt:
		if e.Prompts == nil {
			return "", fmt.Errorf("tasks: no prompt runner configured")
		}
		return e.Prompts.RunPrompt(ctx, task.AgentID, task.ID, task.Prompt)
	case ActionTool:
		if e.Tools == nil {
			return "", fmt.Errorf("tasks: no tool invoker configured")
		}
		args := json.RawMessage(task.Config.ToolArgs)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		return e.Tools.InvokeTool(ctx, task.Config.ToolName, args)
	case ActionNotify:
		if e.Notify == nil {
			return "", fmt.Errorf("tasks: no notifier configured")
		}
		if err := e.Notify.Notify(ctx, task.Config.Channel, task.Config.ChannelID, task.Prompt); err != nil {
			return "", err
		}
		return fmt.Sprintf("notified %s:%s", task.Config.Channel, task.Config.ChannelID), nil
	case ActionWebhook:
		return e.webhook(ctx, task)
	default:
		return "", fmt.Errorf("tasks: unknown action %q", action)
	}
}

func (e *ActionExecutor) webhook(ctx context.Context, task *ScheduledTask) (string, error) {
	url := strings.TrimSpace(task.Config.URL)
	if url == "" {
		return "", fmt.Errorf("tasks: webhook action requires a url")
	}
	client := e.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	payload, err := json.Marshal(map[string]string{
		"task_id": task.ID,
		"name":    task.Name,
		"prompt":  task.Prompt,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("tasks: webhook returned %s", resp.Status)
	}
	return fmt.Sprintf("webhook %s returned %s", url, resp.Status), nil
}
