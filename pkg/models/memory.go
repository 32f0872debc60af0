package models

import "time"

// MemoryScope restricts where a memory entry is visible during search.
type MemoryScope string

const (
	ScopeSession MemoryScope = "session"
	ScopeChannel MemoryScope = "channel"
	ScopeAgent   MemoryScope = "agent"
	ScopeGlobal  MemoryScope = "global"
	ScopeAll     MemoryScope = "all"
)

// MemoryMetadata annotates an entry with provenance for filtered recall.
type MemoryMetadata struct {
	Source string         `json:"source,omitempty"` // "turn" or "explicit"
	Role   string         `json:"role,omitempty"`
	Tags   []string       `json:"tags,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// MemoryEntry is one embeddable record in the vector index.
type MemoryEntry struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	ChannelID string         `json:"channel_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Content   string         `json:"content"`
	Metadata  MemoryMetadata `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// SearchRequest asks the vector index for entries similar to Query,
// optionally restricted to a scope and filtered on metadata values.
type SearchRequest struct {
	Query   string         `json:"query"`
	Scope   MemoryScope    `json:"scope,omitempty"`
	ScopeID string         `json:"scope_id,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
}

// SearchResult pairs a matched entry with its similarity score.
type SearchResult struct {
	Entry *MemoryEntry `json:"entry"`
	Score float32      `json:"score"`
}

// SearchResponse is the ordered result set of one search.
type SearchResponse struct {
	Results []*SearchResult `json:"results"`
}
