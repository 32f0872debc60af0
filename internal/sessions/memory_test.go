package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/cratos-run/cratos/pkg/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	session := &models.Session{
		ID:          "s1",
		Key:         "main:api:peer",
		OwnerUserID: "u1",
		Status:      models.SessionIdle,
		CreatedAt:   now,
	}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.OwnerUserID != "u1" {
		t.Errorf("OwnerUserID = %q, want u1", got.OwnerUserID)
	}

	byKey, err := store.GetByKey(ctx, "main:api:peer")
	if err != nil || byKey.ID != "s1" {
		t.Fatalf("GetByKey() = %v, %v", byKey, err)
	}

	if _, err := store.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreHistoryOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &models.Session{ID: "s1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i, content := range []string{"one", "two", "three"} {
		msg := &models.Message{ID: string(rune('a' + i)), Content: content, CreatedAt: time.Now()}
		if err := store.AppendMessage(ctx, "s1", msg); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	history, err := store.GetHistory(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].Content != "two" || history[1].Content != "three" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestGetOrCreateRace(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mint := func() *models.Session {
		return &models.Session{ID: "fresh", CreatedAt: time.Now(), Status: models.SessionIdle}
	}
	key := SessionKey("main", models.ChannelAPI, "peer-1")

	first, err := GetOrCreate(ctx, store, key, "main", models.ChannelAPI, "peer-1", mint)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := GetOrCreate(ctx, store, key, "main", models.ChannelAPI, "peer-1", mint)
	if err != nil {
		t.Fatalf("second GetOrCreate() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same session, got %q and %q", first.ID, second.ID)
	}
}
