package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GraphEntity is the persisted form of an extracted entity: normalised
// name, kind, and how often it has been mentioned across all turns.
type GraphEntity struct {
	ID           string
	Name         string
	Kind         EntityKind
	FirstSeen    time.Time
	MentionCount int
}

// TurnRecord is the persisted form of a Turn, assigned a stable TurnID so
// it can be referenced by entity edges and the vector index.
type TurnRecord struct {
	TurnID    string
	SessionID string
	Turn      Turn
	IndexedAt time.Time
}

// GraphStore persists turns, entities, weighted turn↔entity edges, and
// entity co-occurrence counts for graph-based retrieval. The in-memory
// implementation below backs a single process; a SQL-backed
// implementation would satisfy the same interface against the shared
// relational store described in spec §6.
type GraphStore interface {
	// UpsertTurn stores a turn and returns its assigned TurnID.
	UpsertTurn(ctx context.Context, t Turn) (string, error)
	// MaxTurnIndex returns the highest TurnIndex already indexed for a
	// session, or -1 if none has been indexed yet.
	MaxTurnIndex(ctx context.Context, sessionID string) (int, error)
	// UpsertEntities records entity mentions for a turn: entities are
	// created or have MentionCount incremented, weighted edges are
	// inserted, and co-occurrence counts are updated for every pair of
	// entities that appear together in the turn.
	UpsertEntities(ctx context.Context, turnID string, entities []ExtractedEntity) error
	// TurnsForEntity returns every TurnID linked to the named entity.
	TurnsForEntity(ctx context.Context, name string) ([]string, error)
	// Turn returns a previously-indexed turn by ID.
	Turn(ctx context.Context, turnID string) (*TurnRecord, error)
}

type edgeKey struct {
	turnID, entityID string
}

// InMemoryGraphStore is a process-local GraphStore, suitable for tests
// and single-instance deployments without a relational backend.
type InMemoryGraphStore struct {
	mu sync.RWMutex

	turns          map[string]*TurnRecord
	maxTurnIndex   map[string]int  // sessionID -> highest TurnIndex
	hasTurnIndexed map[string]bool // sessionID -> at least one turn indexed

	entitiesByName map[string]*GraphEntity // normalised name -> entity
	edges          map[edgeKey]float32     // (turnID, entityID) -> relevance
	entityTurns    map[string]map[string]struct{} // entityID -> set of turnIDs
	coOccurrence   map[string]map[string]int      // entityID -> entityID -> count

	now func() time.Time
}

// NewInMemoryGraphStore constructs an empty in-memory graph store.
func NewInMemoryGraphStore() *InMemoryGraphStore {
	return &InMemoryGraphStore{
		turns:          make(map[string]*TurnRecord),
		maxTurnIndex:   make(map[string]int),
		hasTurnIndexed: make(map[string]bool),
		entitiesByName: make(map[string]*GraphEntity),
		edges:          make(map[edgeKey]float32),
		entityTurns:    make(map[string]map[string]struct{}),
		coOccurrence:   make(map[string]map[string]int),
		now:            time.Now,
	}
}

func normaliseEntityName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (g *InMemoryGraphStore) UpsertTurn(ctx context.Context, t Turn) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	turnID := uuid.NewString()
	g.turns[turnID] = &TurnRecord{TurnID: turnID, SessionID: t.SessionID, Turn: t, IndexedAt: g.now()}
	if !g.hasTurnIndexed[t.SessionID] || t.TurnIndex > g.maxTurnIndex[t.SessionID] {
		g.maxTurnIndex[t.SessionID] = t.TurnIndex
	}
	g.hasTurnIndexed[t.SessionID] = true
	return turnID, nil
}

func (g *InMemoryGraphStore) MaxTurnIndex(ctx context.Context, sessionID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.hasTurnIndexed[sessionID] {
		return -1, nil
	}
	return g.maxTurnIndex[sessionID], nil
}

func (g *InMemoryGraphStore) UpsertEntities(ctx context.Context, turnID string, entities []ExtractedEntity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var entityIDs []string
	for _, e := range entities {
		key := normaliseEntityName(e.Name)
		entity, ok := g.entitiesByName[key]
		if !ok {
			entity = &GraphEntity{ID: uuid.NewString(), Name: e.Name, Kind: e.Kind, FirstSeen: g.now()}
			g.entitiesByName[key] = entity
		}
		entity.MentionCount++

		g.edges[edgeKey{turnID: turnID, entityID: entity.ID}] = e.Relevance
		if g.entityTurns[entity.ID] == nil {
			g.entityTurns[entity.ID] = make(map[string]struct{})
		}
		g.entityTurns[entity.ID][turnID] = struct{}{}
		entityIDs = append(entityIDs, entity.ID)
	}

	for i := 0; i < len(entityIDs); i++ {
		for j := i + 1; j < len(entityIDs); j++ {
			g.bumpCoOccurrenceLocked(entityIDs[i], entityIDs[j])
		}
	}
	return nil
}

func (g *InMemoryGraphStore) bumpCoOccurrenceLocked(a, b string) {
	if a == b {
		return
	}
	if g.coOccurrence[a] == nil {
		g.coOccurrence[a] = make(map[string]int)
	}
	if g.coOccurrence[b] == nil {
		g.coOccurrence[b] = make(map[string]int)
	}
	g.coOccurrence[a][b]++
	g.coOccurrence[b][a]++
}

func (g *InMemoryGraphStore) TurnsForEntity(ctx context.Context, name string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entity, ok := g.entitiesByName[normaliseEntityName(name)]
	if !ok {
		return nil, nil
	}
	turnSet := g.entityTurns[entity.ID]
	turnIDs := make([]string, 0, len(turnSet))
	for id := range turnSet {
		turnIDs = append(turnIDs, id)
	}
	sort.Strings(turnIDs)
	return turnIDs, nil
}

func (g *InMemoryGraphStore) Turn(ctx context.Context, turnID string) (*TurnRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.turns[turnID]
	if !ok {
		return nil, nil
	}
	return rec, nil
}
