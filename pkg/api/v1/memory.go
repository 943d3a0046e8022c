package v1

import "time"

// MemoryRecord is one stored memory on the wire.
type MemoryRecord struct {
	ID         string            `json:"id"`
	AgentID    string            `json:"agent_id"`
	Type       string            `json:"type"`
	Content    string            `json:"content"`
	Importance string            `json:"importance"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// MemoryListResponse wraps GET /memory/:agent_id.
type MemoryListResponse struct {
	AgentID string         `json:"agent_id"`
	Records []MemoryRecord `json:"records"`
	Count   int            `json:"count"`
}

// MemorySearchRequest is the body of POST /memory/:agent_id/search.
type MemorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// MemorySearchResult pairs a record with its relevance score in [0,1].
type MemorySearchResult struct {
	Record MemoryRecord `json:"record"`
	Score  float64      `json:"score"`
}

// MemorySearchResponse wraps the search results.
type MemorySearchResponse struct {
	AgentID string               `json:"agent_id"`
	Results []MemorySearchResult `json:"results"`
	Count   int                  `json:"count"`
}

// MemorySummaryResponse wraps GET /memory/:agent_id/summary.
type MemorySummaryResponse struct {
	AgentID      string         `json:"agent_id"`
	Total        int            `json:"total"`
	ByType       map[string]int `json:"by_type,omitempty"`
	ByImportance map[string]int `json:"by_importance,omitempty"`
	OldestAt     *time.Time     `json:"oldest_at,omitempty"`
	NewestAt     *time.Time     `json:"newest_at,omitempty"`
}
