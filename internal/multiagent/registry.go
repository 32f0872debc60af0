// Package multiagent routes @persona-mentioned inputs to per-agent
// runtimes: parse, validate, fan out bounded, coalesce.
package multiagent

import (
	"context"
	"sync"

	"github.com/cratos-run/cratos/internal/agent"
	"github.com/cratos-run/cratos/pkg/models"
)

// AgentRuntime is one persona's execution engine. In production every
// persona shares the orchestrator from internal/agent, configured with
// that persona's system prompt.
type AgentRuntime interface {
	Process(ctx context.Context, session *models.Session, msg *models.Message) (<-chan agent.ResponseChunk, error)
}

// Agent describes a registered persona the dispatcher can route to.
type Agent struct {
	ID           string
	Description  string
	SystemPrompt string
}

// Orchestrator is the dispatcher's agent registry: persona definitions
// plus the runtime each resolves to. Registration happens at startup;
// lookups afterwards are read-mostly.
type Orchestrator struct {
	mu       sync.RWMutex
	agents   map[string]Agent
	runtimes map[string]AgentRuntime
}

// NewOrchestrator constructs an empty registry.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		agents:   make(map[string]Agent),
		runtimes: make(map[string]AgentRuntime),
	}
}

// Register adds or replaces an agent and its runtime.
func (o *Orchestrator) Register(a Agent, runtime AgentRuntime) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agents[a.ID] = a
	o.runtimes[a.ID] = runtime
}

// GetAgent looks up a persona definition by id.
func (o *Orchestrator) GetAgent(id string) (Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[id]
	return a, ok
}

// GetRuntime looks up a persona's runtime by id.
func (o *Orchestrator) GetRuntime(id string) (AgentRuntime, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rt, ok := o.runtimes[id]
	return rt, ok
}

type handoffStackKey struct{}
type currentAgentKey struct{}

// WithHandoffStack records the dispatch nesting path on ctx; its length
// is the recursion depth the dispatcher guards against.
func WithHandoffStack(ctx context.Context, stack []string) context.Context {
	return context.WithValue(ctx, handoffStackKey{}, stack)
}

// HandoffStackFromContext returns the dispatch nesting path, if any.
func HandoffStackFromContext(ctx context.Context) []string {
	stack, _ := ctx.Value(handoffStackKey{}).([]string)
	return stack
}

// WithCurrentAgent marks which persona a task runs as.
func WithCurrentAgent(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, currentAgentKey{}, agentID)
}

// CurrentAgentFromContext returns the persona a task runs as, if set.
func CurrentAgentFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(currentAgentKey{}).(string)
	return id, ok
}
