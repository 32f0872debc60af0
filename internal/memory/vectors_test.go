package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cratos-run/cratos/pkg/models"
)

// fixedEmbeddings maps known strings to fixed vectors so similarity is
// deterministic without a live embedding service.
type fixedEmbeddings struct {
	vectors map[string][]float32
}

func (f *fixedEmbeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func testProvider() *fixedEmbeddings {
	return &fixedEmbeddings{vectors: map[string][]float32{
		"build failure": {1, 0, 0},
		"broken build":  {0.9, 0.1, 0},
		"lunch menu":    {0, 1, 0},
	}}
}

func TestManagerSearchRanksBySimilarity(t *testing.T) {
	m, err := NewManager(testProvider(), "")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ctx := context.Background()

	entries := []*models.MemoryEntry{
		{ID: "e1", SessionID: "s1", Content: "broken build"},
		{ID: "e2", SessionID: "s1", Content: "lunch menu"},
	}
	if err := m.Index(ctx, entries); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	resp, err := m.Search(ctx, &models.SearchRequest{Query: "build failure", Scope: models.ScopeSession, ScopeID: "s1", Limit: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Entry.ID != "e1" {
		t.Fatalf("unexpected ranking %+v", resp.Results)
	}
	if resp.Results[0].Score <= resp.Results[1].Score {
		t.Error("scores not descending")
	}
}

func TestManagerScopeFiltering(t *testing.T) {
	m, _ := NewManager(testProvider(), "")
	ctx := context.Background()

	_ = m.Index(ctx, []*models.MemoryEntry{
		{ID: "in", SessionID: "s1", Content: "broken build"},
		{ID: "out", SessionID: "s2", Content: "broken build"},
	})

	resp, err := m.Search(ctx, &models.SearchRequest{Query: "build failure", Scope: models.ScopeSession, ScopeID: "s1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Entry.ID != "in" {
		t.Fatalf("scope filter failed: %+v", resp.Results)
	}
}

func TestManagerPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.idx")
	ctx := context.Background()

	m, err := NewManager(testProvider(), path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.Index(ctx, []*models.MemoryEntry{{ID: "e1", SessionID: "s1", Content: "broken build"}}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	reloaded, err := NewManager(testProvider(), path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	resp, err := reloaded.Search(ctx, &models.SearchRequest{Query: "build failure", Scope: models.ScopeSession, ScopeID: "s1"})
	if err != nil {
		t.Fatalf("Search() after reload error = %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected persisted entry after reload, got %+v", resp.Results)
	}
}

func TestManagerDelete(t *testing.T) {
	m, _ := NewManager(testProvider(), "")
	ctx := context.Background()

	_ = m.Index(ctx, []*models.MemoryEntry{{ID: "e1", Content: "broken build"}})
	if err := m.Delete(ctx, []string{"e1"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	resp, _ := m.Search(ctx, &models.SearchRequest{Query: "build failure"})
	if len(resp.Results) != 0 {
		t.Fatalf("expected empty index after delete, got %+v", resp.Results)
	}
}
