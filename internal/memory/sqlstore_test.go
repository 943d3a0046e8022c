package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/db"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	log := newTestLogger(t)

	pool, err := db.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	store, err := NewSQLStore(pool, log)
	require.NoError(t, err)
	return store
}

func TestSQLStoreSaveAndGet(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	rec := &Record{
		AgentID:    "agent-1",
		Type:       "observation",
		Content:    "the deployment pipeline uses three stages",
		Importance: ImportanceHigh,
		Metadata:   map[string]string{"source": "cycle"},
	}
	require.NoError(t, store.Save(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, rec.CreatedAt.Add(365*24*time.Hour), *rec.ExpiresAt)

	retrieved, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, retrieved.Content)
	assert.Equal(t, ImportanceHigh, retrieved.Importance)
	assert.Equal(t, "cycle", retrieved.Metadata["source"])
}

func TestSQLStoreSaveRequiresAgentID(t *testing.T) {
	store := newTestSQLStore(t)

	err := store.Save(context.Background(), &Record{Content: "orphan"})
	assert.Error(t, err)
}

func TestSQLStoreCriticalNeverExpires(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	rec := &Record{AgentID: "agent-1", Content: "root identity key", Importance: ImportanceCritical}
	require.NoError(t, store.Save(ctx, rec))
	assert.Nil(t, rec.ExpiresAt)

	retrieved, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, retrieved.ExpiresAt)
}

func TestSQLStoreGetNotFound(t *testing.T) {
	store := newTestSQLStore(t)

	_, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreSearch(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	contents := []string{
		"kubernetes cluster scaled to five nodes",
		"user prefers dark mode in the dashboard",
		"kubernetes upgrade scheduled for friday",
	}
	for _, content := range contents {
		require.NoError(t, store.Save(ctx, &Record{AgentID: "agent-1", Content: content}))
	}
	// Same content under another agent must not leak into results.
	require.NoError(t, store.Save(ctx, &Record{AgentID: "agent-2", Content: "kubernetes secrets rotated"}))

	results, err := store.Search(ctx, "agent-1", "kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, "agent-1", res.Record.AgentID)
		assert.Greater(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}
}

func TestSQLStoreSearchRanking(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	// Both terms present should outrank a single hit of similar age.
	partial := &Record{AgentID: "agent-1", Content: "the database migration is pending"}
	full := &Record{AgentID: "agent-1", Content: "database migration completed without errors"}
	require.NoError(t, store.Save(ctx, partial))
	require.NoError(t, store.Save(ctx, full))

	results, err := store.Search(ctx, "agent-1", "migration completed", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, full.ID, results[0].Record.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSQLStoreSearchEmptyQueryFallsBackToRecent(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &Record{
			AgentID:   "agent-1",
			Content:   "note",
			CreatedAt: time.Now().UTC().Add(time.Duration(-i) * time.Hour),
		}
		require.NoError(t, store.Save(ctx, rec))
	}

	results, err := store.Search(ctx, "agent-1", "  ", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Record.CreatedAt.Before(results[1].Record.CreatedAt), "expected newest record first")
}

func TestSQLStoreRecentExcludesExpired(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	expired := &Record{AgentID: "agent-1", Content: "stale", ExpiresAt: &past}
	require.NoError(t, store.Save(ctx, expired))
	require.NoError(t, store.Save(ctx, &Record{AgentID: "agent-1", Content: "fresh"}))

	records, err := store.Recent(ctx, "agent-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].Content)
}

func TestSQLStoreCleanupExpired(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 2; i++ {
		require.NoError(t, store.Save(ctx, &Record{AgentID: "agent-1", Content: "stale", ExpiresAt: &past}))
	}
	keeper := &Record{AgentID: "agent-1", Content: "keeper", Importance: ImportanceCritical}
	require.NoError(t, store.Save(ctx, keeper))

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = store.Get(ctx, keeper.ID)
	assert.NoError(t, err, "keeper should survive cleanup")
}

func TestSQLStoreDelete(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	rec := &Record{AgentID: "agent-1", Content: "to be forgotten"}
	require.NoError(t, store.Save(ctx, rec))

	// Another agent cannot evict it.
	removed, err := store.Delete(ctx, "agent-2", rec.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	_, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)

	removed, err = store.Delete(ctx, "agent-1", rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = store.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again reports nothing removed.
	removed, err = store.Delete(ctx, "agent-1", rec.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSQLStoreSummarize(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	older := &Record{
		AgentID:    "agent-1",
		Type:       "fact",
		Content:    "first",
		Importance: ImportanceHigh,
		CreatedAt:  time.Now().UTC().Add(-2 * time.Hour),
	}
	newer := &Record{AgentID: "agent-1", Type: "conversation", Content: "second"}
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	// Expired and foreign records stay out of the aggregate.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, &Record{AgentID: "agent-1", Content: "stale", ExpiresAt: &past}))
	require.NoError(t, store.Save(ctx, &Record{AgentID: "agent-2", Content: "other"}))

	summary, err := store.Summarize(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", summary.AgentID)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.ByType["fact"])
	assert.Equal(t, 1, summary.ByType["conversation"])
	assert.Equal(t, 1, summary.ByImportance[string(ImportanceHigh)])
	require.NotNil(t, summary.OldestAt)
	require.NotNil(t, summary.NewestAt)
	assert.True(t, summary.OldestAt.Before(*summary.NewestAt))
}

func TestSQLStoreSummarizeEmpty(t *testing.T) {
	store := newTestSQLStore(t)

	summary, err := store.Summarize(context.Background(), "agent-none")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Nil(t, summary.OldestAt)
	assert.Nil(t, summary.NewestAt)
}

func TestExpiryFor(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		importance Importance
		want       time.Duration
		forever    bool
	}{
		{ImportanceCritical, 0, true},
		{ImportanceHigh, 365 * 24 * time.Hour, false},
		{ImportanceMedium, 90 * 24 * time.Hour, false},
		{ImportanceLow, 30 * 24 * time.Hour, false},
		{ImportanceTemp, 24 * time.Hour, false},
	}
	for _, tc := range cases {
		got := ExpiryFor(tc.importance, now)
		if tc.forever {
			assert.Nil(t, got, string(tc.importance))
			continue
		}
		require.NotNil(t, got, string(tc.importance))
		assert.Equal(t, now.Add(tc.want), *got, string(tc.importance))
	}
}

func TestParseImportance(t *testing.T) {
	assert.Equal(t, ImportanceHigh, ParseImportance("HIGH"))
	assert.Equal(t, ImportanceMedium, ParseImportance("unknown"))
}
