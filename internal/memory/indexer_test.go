package memory

import (
	"context"
	"testing"

	"github.com/cratos-run/cratos/pkg/models"
)

// indexer tests run without a vector backend configured (vectors=nil),
// exercising entity-graph indexing and entity-only retrieval scoring in
// isolation from embedding providers and vector stores.

func TestIndexer_IndexSessionDecomposesAndPersistsTurns(t *testing.T) {
	ix := NewIndexer(nil, NewInMemoryGraphStore())
	ctx := context.Background()

	history := []*models.Message{
		{Role: models.RoleUser, Content: "Why does main.go fail to build?"},
		{Role: models.RoleAssistant, Content: "The scheduler module has a nil pointer bug."},
	}

	if err := ix.IndexSession(ctx, "sess-1", history); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	idx, err := ix.graph.MaxTurnIndex(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MaxTurnIndex: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected max turn index 1 after indexing 2 turns, got %d", idx)
	}
}

func TestIndexer_IndexSessionIsIncremental(t *testing.T) {
	ix := NewIndexer(nil, NewInMemoryGraphStore())
	ctx := context.Background()

	history := []*models.Message{
		{Role: models.RoleUser, Content: "first message"},
	}
	if err := ix.IndexSession(ctx, "sess-1", history); err != nil {
		t.Fatalf("first IndexSession: %v", err)
	}

	history = append(history, &models.Message{Role: models.RoleAssistant, Content: "first reply"})
	if err := ix.IndexSession(ctx, "sess-1", history); err != nil {
		t.Fatalf("second IndexSession: %v", err)
	}

	idx, err := ix.graph.MaxTurnIndex(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MaxTurnIndex: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected max turn index 1, got %d", idx)
	}
}

func TestIndexer_RetrieveRanksByEntityOverlapWithoutVectorBackend(t *testing.T) {
	ix := NewIndexer(nil, NewInMemoryGraphStore())
	ctx := context.Background()

	history := []*models.Message{
		{Role: models.RoleUser, Content: "scheduler keeps crashing in main.go"},
		{Role: models.RoleAssistant, Content: "unrelated discussion about webhook retries"},
	}
	if err := ix.IndexSession(ctx, "sess-1", history); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	results, err := ix.Retrieve(ctx, "sess-1", "scheduler bug in main.go", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].Turn.TurnIndex != 0 {
		t.Fatalf("expected the scheduler/main.go turn to rank first, got turn index %d", results[0].Turn.TurnIndex)
	}
	if results[0].EntityScore <= 0 {
		t.Fatalf("expected a positive entity score for the matching turn")
	}
}

func TestIndexer_RetrieveTopKLimitsResults(t *testing.T) {
	ix := NewIndexer(nil, NewInMemoryGraphStore())
	ctx := context.Background()

	history := []*models.Message{
		{Role: models.RoleUser, Content: "scheduler issue one"},
		{Role: models.RoleAssistant, Content: "scheduler issue two"},
		{Role: models.RoleUser, Content: "scheduler issue three"},
	}
	if err := ix.IndexSession(ctx, "sess-1", history); err != nil {
		t.Fatalf("IndexSession: %v", err)
	}

	results, err := ix.Retrieve(ctx, "sess-1", "scheduler", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected topK=1 to limit results to 1, got %d", len(results))
	}
}
