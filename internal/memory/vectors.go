package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cratos-run/cratos/pkg/models"
)

// vectorRecord pairs an entry with its embedding in the on-disk index.
type vectorRecord struct {
	Entry  *models.MemoryEntry `json:"entry"`
	Vector []float32           `json:"vector"`
}

// Manager is the vector half of the memory system: it embeds entries
// and answers similarity searches. The index lives in process with an
// on-disk snapshot (one JSON file per index, loaded at startup and
// rewritten after every mutation) so it survives restarts separately
// from the relational store, as the persistence layout requires.
type Manager struct {
	mu       sync.RWMutex
	records  map[string]*vectorRecord
	provider EmbeddingProvider
	path     string // empty disables persistence
}

// NewManager loads (or initialises) the index at path. provider may be
// nil, in which case Index and Search fail fast and callers degrade to
// entity-only retrieval.
func NewManager(provider EmbeddingProvider, path string) (*Manager, error) {
	m := &Manager{records: make(map[string]*vectorRecord), provider: provider, path: path}
	if path != "" {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: load index: %w", err)
	}
	var records []*vectorRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("memory: parse index: %w", err)
	}
	for _, rec := range records {
		m.records[rec.Entry.ID] = rec
	}
	return nil
}

// save rewrites the snapshot; callers hold the write lock.
func (m *Manager) saveLocked() error {
	if m.path == "" {
		return nil
	}
	records := make([]*vectorRecord, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Index embeds and stores entries, replacing any with the same ID.
func (m *Manager) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	if m.provider == nil {
		return fmt.Errorf("memory: no embedding provider configured")
	}
	if len(entries) == 0 {
		return nil
	}
	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Content
	}
	vectors, err := m.provider.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(entries) {
		return fmt.Errorf("memory: embedding count mismatch: %d vectors for %d entries", len(vectors), len(entries))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, entry := range entries {
		m.records[entry.ID] = &vectorRecord{Entry: entry, Vector: vectors[i]}
	}
	return m.saveLocked()
}

// Search embeds the query and returns the top-Limit entries by cosine
// similarity, restricted by scope and metadata filters.
func (m *Manager) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if m.provider == nil {
		return nil, fmt.Errorf("memory: no embedding provider configured")
	}
	vectors, err := m.provider.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, err
	}
	query := vectors[0]

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	var results []*models.SearchResult
	for _, rec := range m.records {
		if !matchesScope(rec.Entry, req.Scope, req.ScopeID) {
			continue
		}
		if !matchesFilters(rec.Entry, req.Filters) {
			continue
		}
		results = append(results, &models.SearchResult{
			Entry: rec.Entry,
			Score: cosine(query, rec.Vector),
		})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return &models.SearchResponse{Results: results}, nil
}

// Delete removes entries by ID.
func (m *Manager) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return m.saveLocked()
}

func matchesScope(entry *models.MemoryEntry, scope models.MemoryScope, scopeID string) bool {
	switch scope {
	case "", models.ScopeAll:
		return true
	case models.ScopeSession:
		return entry.SessionID == scopeID
	case models.ScopeChannel:
		return entry.ChannelID == scopeID
	case models.ScopeAgent:
		return entry.AgentID == scopeID
	case models.ScopeGlobal:
		return entry.SessionID == "" && entry.ChannelID == ""
	default:
		return false
	}
}

func matchesFilters(entry *models.MemoryEntry, filters map[string]any) bool {
	for key, want := range filters {
		switch key {
		case "source":
			if entry.Metadata.Source != want {
				return false
			}
		case "category":
			found := false
			for _, tag := range entry.Metadata.Tags {
				if tag == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if entry.Metadata.Extra[key] != want {
				return false
			}
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
