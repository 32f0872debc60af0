package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/cratos-run/cratos/pkg/models"
)

const (
	// vectorWeight and entityWeight combine a turn's vector similarity
	// score with its entity-graph score into a single ranking score.
	vectorWeight = 0.6
	entityWeight = 0.4
)

// Indexer decomposes conversation history into turns, extracts entities
// from each turn, persists both to the graph store, and embeds turn
// content into the vector backend. Retrieve combines vector similarity
// with entity-graph overlap for a single ranked result set.
type Indexer struct {
	vectors *Manager
	graph   GraphStore
}

// NewIndexer ties the turn/entity graph store to the vector-search
// manager. vectors may be nil, in which case Retrieve falls back to
// entity-only scoring and Index skips embedding.
func NewIndexer(vectors *Manager, graph GraphStore) *Indexer {
	return &Indexer{vectors: vectors, graph: graph}
}

// IndexSession decomposes history into turns not yet indexed for
// sessionID, persists each turn and its extracted entities to the graph
// store, and embeds the turn content into the vector backend.
func (ix *Indexer) IndexSession(ctx context.Context, sessionID string, history []*models.Message) error {
	lastIndexed, err := ix.graph.MaxTurnIndex(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("memory: max turn index: %w", err)
	}

	turns := DecomposeHistory(sessionID, history, lastIndexed)
	if len(turns) == 0 {
		return nil
	}

	var entries []*models.MemoryEntry
	for _, turn := range turns {
		turnID, err := ix.graph.UpsertTurn(ctx, turn)
		if err != nil {
			return fmt.Errorf("memory: upsert turn: %w", err)
		}

		entities := ExtractEntities(turn.Content)
		if err := ix.graph.UpsertEntities(ctx, turnID, entities); err != nil {
			return fmt.Errorf("memory: upsert entities: %w", err)
		}

		if ix.vectors != nil {
			entries = append(entries, &models.MemoryEntry{
				ID:        turnID,
				SessionID: sessionID,
				Content:   turn.Content,
				Metadata:  metadataForTurnRole(turn.Role),
			})
		}
	}

	if ix.vectors != nil && len(entries) > 0 {
		if err := ix.vectors.Index(ctx, entries); err != nil {
			return fmt.Errorf("memory: index embeddings: %w", err)
		}
	}
	return nil
}

// metadataForTurnRole maps a turn role onto the vector entry's role metadata.
func metadataForTurnRole(role TurnRole) models.MemoryMetadata {
	return models.MemoryMetadata{Source: "turn", Role: string(role)}
}

// RetrievedTurn is one ranked result from Retrieve.
type RetrievedTurn struct {
	TurnID       string
	Turn         Turn
	VectorScore  float32
	EntityScore  float32
	CombinedScore float32
}

// Retrieve scores turns by blending vector similarity for query against
// the entity overlap between query's extracted entities and each
// candidate turn's linked entities, returning the top-K by combined
// score: 0.6*vector + 0.4*entity.
func (ix *Indexer) Retrieve(ctx context.Context, sessionID, query string, topK int) ([]RetrievedTurn, error) {
	scores := make(map[string]*RetrievedTurn)

	if ix.vectors != nil {
		resp, err := ix.vectors.Search(ctx, &models.SearchRequest{
			Query:   query,
			Scope:   models.ScopeSession,
			ScopeID: sessionID,
			Limit:   topK * 3,
		})
		if err != nil {
			return nil, fmt.Errorf("memory: vector search: %w", err)
		}
		for _, result := range resp.Results {
			if result.Entry == nil {
				continue
			}
			rec, err := ix.graph.Turn(ctx, result.Entry.ID)
			if err != nil || rec == nil {
				continue
			}
			scores[rec.TurnID] = &RetrievedTurn{TurnID: rec.TurnID, Turn: rec.Turn, VectorScore: result.Score}
		}
	}

	queryEntities := ExtractEntities(query)
	entityMatchCount := make(map[string]int)
	for _, e := range queryEntities {
		turnIDs, err := ix.graph.TurnsForEntity(ctx, e.Name)
		if err != nil {
			return nil, fmt.Errorf("memory: turns for entity %q: %w", e.Name, err)
		}
		for _, turnID := range turnIDs {
			entityMatchCount[turnID]++
		}
	}
	var maxMatches int
	for _, c := range entityMatchCount {
		if c > maxMatches {
			maxMatches = c
		}
	}
	for turnID, count := range entityMatchCount {
		entry, ok := scores[turnID]
		if !ok {
			rec, err := ix.graph.Turn(ctx, turnID)
			if err != nil || rec == nil {
				continue
			}
			entry = &RetrievedTurn{TurnID: turnID, Turn: rec.Turn}
			scores[turnID] = entry
		}
		if maxMatches > 0 {
			entry.EntityScore = float32(count) / float32(maxMatches)
		}
	}

	out := make([]RetrievedTurn, 0, len(scores))
	for _, entry := range scores {
		entry.CombinedScore = vectorWeight*entry.VectorScore + entityWeight*entry.EntityScore
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].Turn.TurnIndex > out[j].Turn.TurnIndex
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// ExplicitMemory is a user- or agent-authored fact recorded outside the
// turn-by-turn conversation history, with its own restricted-recall
// embedding index (category/tags scoped separately from turn retrieval).
type ExplicitMemory struct {
	ID       string
	Name     string
	Content  string
	Category string
	Tags     []string
}

// ExplicitStore persists ExplicitMemory records and makes them available
// to semantic search scoped by category, independent of turn retrieval.
type ExplicitStore interface {
	Save(ctx context.Context, mem ExplicitMemory) error
	List(ctx context.Context, category string) ([]ExplicitMemory, error)
	Delete(ctx context.Context, id string) error
}

// VectorExplicitStore persists explicit memories through the same vector
// backend used for turns, tagged so they never mix into turn retrieval.
type VectorExplicitStore struct {
	vectors *Manager
}

// NewVectorExplicitStore wraps vectors for explicit-memory storage.
func NewVectorExplicitStore(vectors *Manager) *VectorExplicitStore {
	return &VectorExplicitStore{vectors: vectors}
}

const explicitMemorySource = "explicit"

// Save indexes mem under the global scope with Source "explicit" so
// turn-scoped searches never surface it by accident.
func (s *VectorExplicitStore) Save(ctx context.Context, mem ExplicitMemory) error {
	entry := &models.MemoryEntry{
		ID:      mem.ID,
		Content: mem.Content,
		Metadata: models.MemoryMetadata{
			Source: explicitMemorySource,
			Tags:   append([]string{mem.Category}, mem.Tags...),
			Extra:  map[string]any{"name": mem.Name, "category": mem.Category},
		},
	}
	return s.vectors.Index(ctx, []*models.MemoryEntry{entry})
}

// List is not implemented against the vector backend directly: the
// backend.Backend interface exposes similarity search, not metadata
// scan, so listing by category requires a search-shaped query instead.
func (s *VectorExplicitStore) List(ctx context.Context, category string) ([]ExplicitMemory, error) {
	resp, err := s.vectors.Search(ctx, &models.SearchRequest{
		Query:   category,
		Scope:   models.ScopeGlobal,
		Limit:   100,
		Filters: map[string]any{"source": explicitMemorySource, "category": category},
	})
	if err != nil {
		return nil, fmt.Errorf("memory: list explicit: %w", err)
	}
	out := make([]ExplicitMemory, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Entry == nil {
			continue
		}
		name, _ := r.Entry.Metadata.Extra["name"].(string)
		out = append(out, ExplicitMemory{
			ID:       r.Entry.ID,
			Name:     name,
			Content:  r.Entry.Content,
			Category: category,
			Tags:     r.Entry.Metadata.Tags,
		})
	}
	return out, nil
}

// Delete removes an explicit memory by ID.
func (s *VectorExplicitStore) Delete(ctx context.Context, id string) error {
	return s.vectors.Delete(ctx, []string{id})
}
