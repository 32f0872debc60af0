package multiagent

import (
	"context"
	"strings"
	"testing"

	"github.com/cratos-run/cratos/internal/agent"
	"github.com/cratos-run/cratos/pkg/models"
)

// echoRuntime answers every task with a fixed prefix plus the input.
type echoRuntime struct {
	prefix string
}

func (r *echoRuntime) Process(ctx context.Context, session *models.Session, msg *models.Message) (<-chan agent.ResponseChunk, error) {
	out := make(chan agent.ResponseChunk, 1)
	go func() {
		defer close(out)
		out <- agent.ResponseChunk{Text: r.prefix + ": " + msg.Content}
	}()
	return out, nil
}

func registryWith(ids ...string) *Orchestrator {
	o := NewOrchestrator()
	for _, id := range ids {
		o.Register(Agent{ID: id}, &echoRuntime{prefix: id})
	}
	return o
}

func TestDispatchSingleMention(t *testing.T) {
	d := NewDispatcher(registryWith("backend"))
	session := &models.Session{ID: "s1"}

	responses, err := d.Dispatch(context.Background(), session, "@backend design the API", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(responses) != 1 || !responses[0].Success {
		t.Fatalf("unexpected responses %+v", responses)
	}
	if !strings.Contains(responses[0].Content, "design the API") {
		t.Errorf("content = %q", responses[0].Content)
	}
}

func TestDispatchParallelKeepsOrder(t *testing.T) {
	d := NewDispatcher(registryWith("backend", "frontend"))
	session := &models.Session{ID: "s1"}

	responses, err := d.Dispatch(context.Background(), session, "@backend build API; @frontend build UI", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[0].AgentID != "backend" || responses[1].AgentID != "frontend" {
		t.Errorf("responses out of order: %+v", responses)
	}
}

func TestDispatchUnknownAgent(t *testing.T) {
	d := NewDispatcher(registryWith("backend"))
	_, err := d.Dispatch(context.Background(), &models.Session{ID: "s1"}, "@ghost do a thing", "")
	var notFound *AgentNotFoundError
	if !asAgentNotFound(err, &notFound) || notFound.Name != "ghost" {
		t.Fatalf("expected AgentNotFoundError{ghost}, got %v", err)
	}
}

func asAgentNotFound(err error, target **AgentNotFoundError) bool {
	for err != nil {
		if e, ok := err.(*AgentNotFoundError); ok {
			*target = e
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestDispatchDepthGuard(t *testing.T) {
	d := NewDispatcher(registryWith("backend"), WithMaxDepth(1))
	ctx := WithHandoffStack(context.Background(), []string{"outer"})

	if _, err := d.Dispatch(ctx, &models.Session{ID: "s1"}, "@backend go", ""); err != ErrMaxDepthExceeded {
		t.Fatalf("expected ErrMaxDepthExceeded, got %v", err)
	}
}

func TestDispatchTokenBudgetFailsOnlyOffender(t *testing.T) {
	// Budget of 1 token: the first completed task exhausts it, so a
	// later task fails with ErrTokenBudgetExceeded without cancelling
	// the ones already done.
	d := NewDispatcher(registryWith("a", "b", "c"), WithTokenBudget(1), WithMaxParallel(1))
	responses, err := d.Dispatch(context.Background(), &models.Session{ID: "s1"}, "@a one; @b two; @c three", "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	var exceeded, succeeded int
	for _, resp := range responses {
		if resp.Error == ErrTokenBudgetExceeded {
			exceeded++
		}
		if resp.Success {
			succeeded++
		}
	}
	if succeeded == 0 || exceeded == 0 {
		t.Fatalf("expected a mix of successes and budget failures, got %+v", responses)
	}
}
