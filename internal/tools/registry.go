// Package tools defines the tool contract, the startup-built registry,
// and the runner that gates every invocation behind the policy resolver
// and the approval protocol.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cratos-run/cratos/internal/agent"
)

// Tool is one capability the planner can invoke.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*Result, error)
}

// Result is the structured outcome of one tool execution.
type Result struct {
	Success    bool            `json:"success"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`

	// PolicyBlocked marks security-class failures so the orchestrator's
	// failure summary can report "blocked by policy" distinctly.
	PolicyBlocked bool `json:"-"`
}

// Registry holds the tool set. It is constructed once at startup;
// lookups afterwards are read-only and need no locking.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from the given tools. Duplicate names
// are a construction error, not a silent overwrite.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		name := tool.Name()
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		r.tools[name] = tool
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	return r, nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions renders the registry as planner-facing tool definitions.
func (r *Registry) Definitions() []agent.ToolDefinition {
	out := make([]agent.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		out = append(out, agent.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	return out
}
