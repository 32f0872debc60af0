package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cratos-run/cratos/internal/agent"
	"github.com/cratos-run/cratos/internal/tools/policy"
)

// CallRecord is the per-execution audit entry for one tool call.
type CallRecord struct {
	ToolName   string          `json:"tool_name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Success    bool            `json:"success"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// RunContext carries the caller identity a policy rule may match on,
// plus the execution the call belongs to.
type RunContext struct {
	ExecutionID string
	UserID      string
	Agent       string
	Provider    string
	Sandbox     string
	Group       string
}

// Runner resolves policy, gates on approval when required, executes the
// tool under a bounded timeout, and records every call.
type Runner struct {
	registry  *Registry
	resolver  *policy.LevelResolver
	rules     []policy.Rule
	approvals *agent.ApprovalManager
	timeout   time.Duration

	mu      sync.Mutex
	records map[string][]CallRecord // execution id -> calls
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Registry  *Registry
	Rules     []policy.Rule
	Approvals *agent.ApprovalManager
	Timeout   time.Duration // per-call cap; hard-capped at one minute
}

const maxToolTimeout = time.Minute

// NewRunner constructs a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > maxToolTimeout {
		timeout = maxToolTimeout
	}
	return &Runner{
		registry:  cfg.Registry,
		resolver:  policy.NewLevelResolver(),
		rules:     cfg.Rules,
		approvals: cfg.Approvals,
		timeout:   timeout,
		records:   make(map[string][]CallRecord),
	}
}

// Run resolves and executes one planned call. Policy denials and
// approval rejections come back as failed Results (with PolicyBlocked
// set), never as Go errors: the planner reacts to them as tool output.
func (r *Runner) Run(ctx context.Context, call agent.PlannedCall, rctx RunContext) *Result {
	start := time.Now()

	result := r.run(ctx, call, rctx)
	result.DurationMs = time.Since(start).Milliseconds()

	r.mu.Lock()
	r.records[rctx.ExecutionID] = append(r.records[rctx.ExecutionID], CallRecord{
		ToolName:   call.Name,
		Arguments:  call.Arguments,
		Success:    result.Success,
		Output:     result.Output,
		Error:      result.Error,
		DurationMs: result.DurationMs,
	})
	r.mu.Unlock()
	return result
}

func (r *Runner) run(ctx context.Context, call agent.PlannedCall, rctx RunContext) *Result {
	tool, ok := r.registry.Get(call.Name)
	if !ok {
		return &Result{Error: fmt.Sprintf("unknown tool %q", call.Name)}
	}

	r.mu.Lock()
	rules := r.rules
	r.mu.Unlock()
	action := r.resolver.Resolve(rules, call.Name, policy.RuleContext{
		Agent:    rctx.Agent,
		Provider: rctx.Provider,
		Sandbox:  rctx.Sandbox,
		Group:    rctx.Group,
		User:     rctx.UserID,
	})
	switch action {
	case policy.ActionDeny:
		return &Result{Error: fmt.Sprintf("tool %q blocked by policy", call.Name), PolicyBlocked: true}
	case policy.ActionRequireApproval:
		if r.approvals == nil {
			return &Result{Error: fmt.Sprintf("tool %q requires approval but no approval manager is configured", call.Name), PolicyBlocked: true}
		}
		req := r.approvals.Create(agent.ApprovalRequest{
			ExecutionID:     rctx.ExecutionID,
			RequesterUserID: rctx.UserID,
			Action:          fmt.Sprintf("run tool %s", call.Name),
			ToolName:        call.Name,
			ToolArgs:        string(call.Arguments),
			RiskDescription: fmt.Sprintf("policy requires approval for %s", call.Name),
		})
		if status := r.approvals.Wait(ctx, req.ID); status != agent.ApprovalApproved {
			return &Result{Error: fmt.Sprintf("tool %q was not approved", call.Name), PolicyBlocked: true}
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := tool.Execute(execCtx, call.Arguments)
	if err != nil {
		return &Result{Error: err.Error()}
	}
	if result == nil {
		result = &Result{Success: true}
	}
	return result
}

// Records returns the call log for one execution.
func (r *Runner) Records(executionID string) []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallRecord(nil), r.records[executionID]...)
}

// Release drops the call log for a finished execution.
func (r *Runner) Release(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, executionID)
}

// Definitions exposes the registry's planner-facing tool definitions,
// satisfying agent.ToolRunner.
func (r *Runner) Definitions() []agent.ToolDefinition {
	return r.registry.Definitions()
}

// RunPlanned adapts Run to the orchestrator's seam, flattening the
// structured Result into the string content the planner consumes.
func (r *Runner) RunPlanned(ctx context.Context, call agent.PlannedCall, info agent.ExecutionInfo) agent.ToolOutcome {
	result := r.Run(ctx, call, RunContext{
		ExecutionID: info.ExecutionID,
		UserID:      info.UserID,
		Agent:       info.AgentID,
		Provider:    info.Provider,
		Sandbox:     info.Sandbox,
	})
	content := string(result.Output)
	if result.Error != "" {
		content = result.Error
	}
	if content == "" {
		content = "(no output)"
	}
	return agent.ToolOutcome{
		Content:       content,
		IsError:       !result.Success,
		PolicyBlocked: result.PolicyBlocked,
		DurationMs:    result.DurationMs,
	}
}

// ReplaceRules swaps the policy table, used by config hot-reload.
func (r *Runner) ReplaceRules(rules []policy.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = rules
}
