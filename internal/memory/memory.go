// Package memory persists what agents choose to remember. Records carry an
// importance tier that decides how long they are retained; search is keyword
// scoring on the SQL store and semantic similarity when the vector layer is
// active.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Importance tiers and their retention.
type Importance string

const (
	ImportanceCritical Importance = "critical" // never expires
	ImportanceHigh     Importance = "high"     // 365 days
	ImportanceMedium   Importance = "medium"   // 90 days
	ImportanceLow      Importance = "low"      // 30 days
	ImportanceTemp     Importance = "temp"     // 1 day
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("memory: record not found")

// retention maps importance to a TTL. Critical is absent: it never expires.
var retention = map[Importance]time.Duration{
	ImportanceHigh:   365 * 24 * time.Hour,
	ImportanceMedium: 90 * 24 * time.Hour,
	ImportanceLow:    30 * 24 * time.Hour,
	ImportanceTemp:   24 * time.Hour,
}

// ParseImportance normalizes a user-supplied importance string. Unknown
// values fall back to medium.
func ParseImportance(s string) Importance {
	switch imp := Importance(strings.ToLower(strings.TrimSpace(s))); imp {
	case ImportanceCritical, ImportanceHigh, ImportanceMedium, ImportanceLow, ImportanceTemp:
		return imp
	default:
		return ImportanceMedium
	}
}

// ExpiryFor returns the expiry timestamp for a record created at the given
// time, or nil when the tier never expires.
func ExpiryFor(importance Importance, createdAt time.Time) *time.Time {
	ttl, ok := retention[importance]
	if !ok {
		return nil
	}
	expires := createdAt.Add(ttl)
	return &expires
}

// Record is one stored memory.
type Record struct {
	ID         string            `json:"id"`
	AgentID    string            `json:"agent_id"`
	Type       string            `json:"type"` // conversation, fact, task, snapshot, ...
	Content    string            `json:"content"`
	Importance Importance        `json:"importance"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// SearchResult pairs a record with its relevance score in [0,1].
type SearchResult struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// Summary aggregates one agent's unexpired records.
type Summary struct {
	AgentID      string         `json:"agent_id"`
	Total        int            `json:"total"`
	ByType       map[string]int `json:"by_type,omitempty"`
	ByImportance map[string]int `json:"by_importance,omitempty"`
	OldestAt     *time.Time     `json:"oldest_at,omitempty"`
	NewestAt     *time.Time     `json:"newest_at,omitempty"`
}

// Store is the memory surface handed to agents, tools, and the gateway.
type Store interface {
	// Save persists a record, assigning ID, CreatedAt, and ExpiresAt when
	// they are zero.
	Save(ctx context.Context, rec *Record) error

	// Get fetches one record by id.
	Get(ctx context.Context, id string) (*Record, error)

	// Search returns the best-matching unexpired records for one agent.
	Search(ctx context.Context, agentID, query string, limit int) ([]SearchResult, error)

	// Recent returns the newest unexpired records for one agent.
	Recent(ctx context.Context, agentID string, limit int) ([]Record, error)

	// Summarize aggregates one agent's unexpired records.
	Summarize(ctx context.Context, agentID string) (*Summary, error)

	// Delete removes one record owned by the agent. It reports whether a
	// record was actually removed.
	Delete(ctx context.Context, agentID, id string) (bool, error)

	// CleanupExpired removes expired records and reports how many.
	CleanupExpired(ctx context.Context) (int64, error)

	// Close releases backing resources.
	Close() error
}

// Embedder turns text into a vector. Matches chromem's EmbeddingFunc shape
// so a configured embedder plugs straight into the vector layer.
type Embedder func(ctx context.Context, text string) ([]float32, error)
