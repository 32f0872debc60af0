package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cratos-run/cratos/internal/agent"
	"github.com/cratos-run/cratos/internal/tools/policy"
)

type stubTool struct {
	name   string
	result *Result
}

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Description() string     { return "stub" }
func (s *stubTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	if s.result != nil {
		return s.result, nil
	}
	return &Result{Success: true, Output: json.RawMessage(`{"ok":true}`)}, nil
}

func newTestRunner(t *testing.T, rules []policy.Rule, approvals *agent.ApprovalManager) *Runner {
	t.Helper()
	registry, err := NewRegistry(&stubTool{name: "noop"}, &stubTool{name: "exec_shell"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return NewRunner(RunnerConfig{Registry: registry, Rules: rules, Approvals: approvals})
}

func TestRunnerAllowsByDefault(t *testing.T) {
	runner := newTestRunner(t, nil, nil)
	result := runner.Run(context.Background(), agent.PlannedCall{ID: "c1", Name: "noop"}, RunContext{ExecutionID: "e1"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	records := runner.Records("e1")
	if len(records) != 1 || records[0].ToolName != "noop" || !records[0].Success {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestRunnerDenyShortCircuits(t *testing.T) {
	rules := []policy.Rule{{Level: policy.LevelGlobal, Scope: "*", ToolPattern: "exec_*", Action: policy.ActionDeny}}
	runner := newTestRunner(t, rules, nil)

	result := runner.Run(context.Background(), agent.PlannedCall{Name: "exec_shell"}, RunContext{ExecutionID: "e1"})
	if result.Success || !result.PolicyBlocked {
		t.Fatalf("expected policy block, got %+v", result)
	}
	if !strings.Contains(result.Error, "blocked by policy") {
		t.Errorf("error = %q, want policy wording", result.Error)
	}
}

func TestRunnerSandboxOverridesGlobalApproval(t *testing.T) {
	// Spec scenario: Global requires approval for exec, Sandbox allows it;
	// with sandbox context set the call runs without an approval gate.
	rules := []policy.Rule{
		{Level: policy.LevelGlobal, Scope: "*", ToolPattern: "exec_shell", Action: policy.ActionRequireApproval},
		{Level: policy.LevelSandbox, Scope: "docker", ToolPattern: "*", Action: policy.ActionAllow},
	}
	runner := newTestRunner(t, rules, nil)

	result := runner.Run(context.Background(), agent.PlannedCall{Name: "exec_shell"}, RunContext{ExecutionID: "e1", Sandbox: "docker"})
	if !result.Success {
		t.Fatalf("expected sandbox override to allow, got %+v", result)
	}

	// Without the sandbox context the global rule wins and, with no
	// approval manager configured, the call is blocked.
	blocked := runner.Run(context.Background(), agent.PlannedCall{Name: "exec_shell"}, RunContext{ExecutionID: "e2"})
	if blocked.Success || !blocked.PolicyBlocked {
		t.Fatalf("expected approval requirement to block, got %+v", blocked)
	}
}

func TestRunnerApprovalFlow(t *testing.T) {
	rules := []policy.Rule{{Level: policy.LevelGlobal, Scope: "*", ToolPattern: "noop", Action: policy.ActionRequireApproval}}
	approvals := agent.NewApprovalManager(time.Minute, nil)
	runner := newTestRunner(t, rules, approvals)

	done := make(chan *Result, 1)
	go func() {
		done <- runner.Run(context.Background(), agent.PlannedCall{Name: "noop"}, RunContext{ExecutionID: "e1", UserID: "u1"})
	}()

	// Wait for the request to appear, then approve it as the requester.
	var reqID, nonce string
	for i := 0; i < 100; i++ {
		if pending := approvals.Pending(); len(pending) == 1 {
			reqID = pending[0].ID
			full, _ := approvals.Get(reqID)
			nonce = full.Nonce
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if reqID == "" {
		t.Fatal("approval request never appeared")
	}
	if _, err := approvals.Respond(reqID, "u1", nonce, true, false); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	select {
	case result := <-done:
		if !result.Success {
			t.Fatalf("expected success after approval, got %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not resume after approval")
	}
}

func TestRunnerUnknownTool(t *testing.T) {
	runner := newTestRunner(t, nil, nil)
	result := runner.Run(context.Background(), agent.PlannedCall{Name: "nope"}, RunContext{ExecutionID: "e1"})
	if result.Success || !strings.Contains(result.Error, "unknown tool") {
		t.Fatalf("unexpected result %+v", result)
	}
}
