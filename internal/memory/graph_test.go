package memory

import (
	"context"
	"testing"
)

func TestInMemoryGraphStore_MaxTurnIndexStartsAtMinusOne(t *testing.T) {
	g := NewInMemoryGraphStore()
	ctx := context.Background()

	idx, err := g.MaxTurnIndex(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MaxTurnIndex: %v", err)
	}
	if idx != -1 {
		t.Fatalf("expected -1 for unindexed session, got %d", idx)
	}
}

func TestInMemoryGraphStore_UpsertTurnTracksMaxIndex(t *testing.T) {
	g := NewInMemoryGraphStore()
	ctx := context.Background()

	for i := 0; i <= 2; i++ {
		if _, err := g.UpsertTurn(ctx, Turn{SessionID: "sess-1", TurnIndex: i}); err != nil {
			t.Fatalf("UpsertTurn %d: %v", i, err)
		}
	}

	idx, err := g.MaxTurnIndex(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MaxTurnIndex: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected max turn index 2, got %d", idx)
	}
}

func TestInMemoryGraphStore_UpsertEntitiesIncrementsMentionCount(t *testing.T) {
	g := NewInMemoryGraphStore()
	ctx := context.Background()

	turnID1, _ := g.UpsertTurn(ctx, Turn{SessionID: "sess-1", TurnIndex: 0})
	turnID2, _ := g.UpsertTurn(ctx, Turn{SessionID: "sess-1", TurnIndex: 1})

	entities := []ExtractedEntity{{Name: "main.go", Kind: EntityFile, Relevance: 1.0}}
	if err := g.UpsertEntities(ctx, turnID1, entities); err != nil {
		t.Fatalf("UpsertEntities turn1: %v", err)
	}
	if err := g.UpsertEntities(ctx, turnID2, entities); err != nil {
		t.Fatalf("UpsertEntities turn2: %v", err)
	}

	entity := g.entitiesByName["main.go"]
	if entity == nil {
		t.Fatalf("expected entity main.go to be tracked")
	}
	if entity.MentionCount != 2 {
		t.Fatalf("expected mention count 2, got %d", entity.MentionCount)
	}

	turnIDs, err := g.TurnsForEntity(ctx, "main.go")
	if err != nil {
		t.Fatalf("TurnsForEntity: %v", err)
	}
	if len(turnIDs) != 2 {
		t.Fatalf("expected 2 turns linked to entity, got %d", len(turnIDs))
	}
}

func TestInMemoryGraphStore_CoOccurrenceCountsPairsInSameTurn(t *testing.T) {
	g := NewInMemoryGraphStore()
	ctx := context.Background()

	turnID, _ := g.UpsertTurn(ctx, Turn{SessionID: "sess-1", TurnIndex: 0})
	entities := []ExtractedEntity{
		{Name: "main.go", Kind: EntityFile, Relevance: 1.0},
		{Name: "scheduler", Kind: EntityConcept, Relevance: 0.7},
	}
	if err := g.UpsertEntities(ctx, turnID, entities); err != nil {
		t.Fatalf("UpsertEntities: %v", err)
	}

	fileEntity := g.entitiesByName["main.go"]
	conceptEntity := g.entitiesByName["scheduler"]
	if g.coOccurrence[fileEntity.ID][conceptEntity.ID] != 1 {
		t.Fatalf("expected co-occurrence count 1 between the two entities")
	}
	if g.coOccurrence[conceptEntity.ID][fileEntity.ID] != 1 {
		t.Fatalf("expected symmetric co-occurrence count")
	}
}

func TestInMemoryGraphStore_TurnsForUnknownEntityReturnsEmpty(t *testing.T) {
	g := NewInMemoryGraphStore()
	ctx := context.Background()

	turnIDs, err := g.TurnsForEntity(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("TurnsForEntity: %v", err)
	}
	if len(turnIDs) != 0 {
		t.Fatalf("expected no turns for unknown entity, got %d", len(turnIDs))
	}
}

func TestInMemoryGraphStore_TurnRoundTrips(t *testing.T) {
	g := NewInMemoryGraphStore()
	ctx := context.Background()

	turn := Turn{SessionID: "sess-1", TurnIndex: 0, Content: "hello world"}
	turnID, err := g.UpsertTurn(ctx, turn)
	if err != nil {
		t.Fatalf("UpsertTurn: %v", err)
	}

	rec, err := g.Turn(ctx, turnID)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected turn record, got nil")
	}
	if rec.Turn.Content != "hello world" {
		t.Fatalf("unexpected turn content: %q", rec.Turn.Content)
	}
}
