package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/db"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/db/dialect"
)

// searchFetchFactor widens the SQL candidate set before Go-side scoring.
const searchFetchFactor = 4

// SQLStore persists records through the shared database pool. It is the
// canonical store; the vector layer composes on top of it.
type SQLStore struct {
	pool   *db.Pool
	logger *logger.Logger
}

// NewSQLStore creates the store and ensures its schema.
func NewSQLStore(pool *db.Pool, log *logger.Logger) (*SQLStore, error) {
	store := &SQLStore{
		pool:   pool,
		logger: log.WithFields(zap.String("component", "memory_store")),
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agent_memories (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			importance TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_memories_agent ON agent_memories(agent_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_memories_expiry ON agent_memories(expires_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Writer().Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save persists a record, assigning defaults for zero fields.
func (s *SQLStore) Save(ctx context.Context, rec *Record) error {
	if rec.AgentID == "" {
		return fmt.Errorf("memory: record requires an agent id")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Importance == "" {
		rec.Importance = ImportanceMedium
	}
	if rec.Type == "" {
		rec.Type = "fact"
	}
	if rec.ExpiresAt == nil {
		rec.ExpiresAt = ExpiryFor(rec.Importance, rec.CreatedAt)
	}

	metadataJSON := "{}"
	if rec.Metadata != nil {
		encoded, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize memory metadata: %w", err)
		}
		metadataJSON = string(encoded)
	}

	var expiresAt interface{}
	if rec.ExpiresAt != nil {
		expiresAt = rec.ExpiresAt.UTC()
	}

	writer := s.pool.Writer()
	_, err := writer.ExecContext(ctx, writer.Rebind(`
		INSERT INTO agent_memories (id, agent_id, memory_type, content, importance, metadata, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.AgentID, rec.Type, rec.Content, string(rec.Importance), metadataJSON, rec.CreatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}

	s.logger.Debug("memory saved",
		zap.String("agent_id", rec.AgentID),
		zap.String("memory_id", rec.ID),
		zap.String("importance", string(rec.Importance)))
	return nil
}

// Get fetches one record by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	reader := s.pool.Reader()
	row := reader.QueryRowContext(ctx, reader.Rebind(`
		SELECT id, agent_id, memory_type, content, importance, metadata, created_at, expires_at
		FROM agent_memories WHERE id = ?
	`), id)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Search scores unexpired records by keyword overlap and recency.
func (s *SQLStore) Search(ctx context.Context, agentID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	terms := searchTerms(query)
	if len(terms) == 0 {
		recent, err := s.Recent(ctx, agentID, limit)
		if err != nil {
			return nil, err
		}
		results := make([]SearchResult, 0, len(recent))
		for _, rec := range recent {
			results = append(results, SearchResult{Record: rec, Score: recencyScore(rec.CreatedAt, time.Now().UTC())})
		}
		return results, nil
	}

	reader := s.pool.Reader()
	like := dialect.Like(reader.DriverName())

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, agent_id, memory_type, content, importance, metadata, created_at, expires_at
		FROM agent_memories
		WHERE agent_id = ? AND (expires_at IS NULL OR expires_at > ?)`)
	args := []interface{}{agentID, time.Now().UTC()}

	sb.WriteString(" AND (")
	for i, term := range terms {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("content " + like + " ?")
		args = append(args, "%"+term+"%")
	}
	sb.WriteString(") ORDER BY created_at DESC LIMIT ?")
	args = append(args, limit*searchFetchFactor)

	rows, err := reader.QueryContext(ctx, reader.Rebind(sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	now := time.Now().UTC()
	var results []SearchResult
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Record: *rec,
			Score:  keywordScore(rec.Content, terms)*0.7 + recencyScore(rec.CreatedAt, now)*0.3,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Recent returns the newest unexpired records for one agent.
func (s *SQLStore) Recent(ctx context.Context, agentID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	reader := s.pool.Reader()
	rows, err := reader.QueryContext(ctx, reader.Rebind(`
		SELECT id, agent_id, memory_type, content, importance, metadata, created_at, expires_at
		FROM agent_memories
		WHERE agent_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC LIMIT ?
	`), agentID, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Summarize aggregates one agent's unexpired records by type and importance.
func (s *SQLStore) Summarize(ctx context.Context, agentID string) (*Summary, error) {
	reader := s.pool.Reader()
	rows, err := reader.QueryContext(ctx, reader.Rebind(`
		SELECT memory_type, importance, created_at
		FROM agent_memories
		WHERE agent_id = ? AND (expires_at IS NULL OR expires_at > ?)
	`), agentID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summary := &Summary{
		AgentID:      agentID,
		ByType:       make(map[string]int),
		ByImportance: make(map[string]int),
	}
	for rows.Next() {
		var (
			memType    string
			importance string
			createdAt  time.Time
		)
		if err := rows.Scan(&memType, &importance, &createdAt); err != nil {
			return nil, err
		}
		summary.Total++
		summary.ByType[memType]++
		summary.ByImportance[importance]++
		if summary.OldestAt == nil || createdAt.Before(*summary.OldestAt) {
			t := createdAt
			summary.OldestAt = &t
		}
		if summary.NewestAt == nil || createdAt.After(*summary.NewestAt) {
			t := createdAt
			summary.NewestAt = &t
		}
	}
	return summary, rows.Err()
}

// Delete removes one record owned by the agent. The agent id scopes the
// delete so one agent cannot evict another's memories by guessing ids.
func (s *SQLStore) Delete(ctx context.Context, agentID, id string) (bool, error) {
	writer := s.pool.Writer()
	result, err := writer.ExecContext(ctx, writer.Rebind(`
		DELETE FROM agent_memories WHERE id = ? AND agent_id = ?
	`), id, agentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}
	removed, _ := result.RowsAffected()
	if removed > 0 {
		s.logger.Debug("memory deleted",
			zap.String("agent_id", agentID),
			zap.String("memory_id", id))
	}
	return removed > 0, nil
}

// expiredIDs lists records past their expiry, for index eviction.
func (s *SQLStore) expiredIDs(ctx context.Context) ([]string, error) {
	reader := s.pool.Reader()
	rows, err := reader.QueryContext(ctx, reader.Rebind(`
		SELECT id FROM agent_memories WHERE expires_at IS NOT NULL AND expires_at <= ?
	`), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CleanupExpired removes expired records and reports how many.
func (s *SQLStore) CleanupExpired(ctx context.Context) (int64, error) {
	writer := s.pool.Writer()
	result, err := writer.ExecContext(ctx, writer.Rebind(`
		DELETE FROM agent_memories WHERE expires_at IS NOT NULL AND expires_at <= ?
	`), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup memories: %w", err)
	}
	removed, _ := result.RowsAffected()
	if removed > 0 {
		s.logger.Info("expired memories removed", zap.Int64("count", removed))
	}
	return removed, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *SQLStore) Close() error {
	return nil
}

// scanRecord reads one row regardless of whether it came from QueryRow or Rows.
func scanRecord(scan func(dest ...interface{}) error) (*Record, error) {
	var (
		rec          Record
		importance   string
		metadataJSON string
		expiresAt    sql.NullTime
	)
	if err := scan(&rec.ID, &rec.AgentID, &rec.Type, &rec.Content, &importance, &metadataJSON, &rec.CreatedAt, &expiresAt); err != nil {
		return nil, err
	}
	rec.Importance = Importance(importance)
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to deserialize memory metadata: %w", err)
		}
	}
	return &rec, nil
}

// searchTerms lowercases and splits a query, dropping one-character noise.
func searchTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

// keywordScore is the fraction of query terms present in the content.
func keywordScore(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// recencyScore decays with age; a day-old record scores 0.5.
func recencyScore(createdAt, now time.Time) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Max(0, 1/(1+ageHours/24))
}
