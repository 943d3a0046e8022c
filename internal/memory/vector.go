package memory

import (
	"context"
	"fmt"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

const vectorCollection = "agent_memories"

// OpenAICompatEmbedder builds an Embedder over an OpenAI-compatible
// /v1/embeddings endpoint, the same server the chat client talks to.
func OpenAICompatEmbedder(baseURL, apiKey, model string) Embedder {
	return Embedder(chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil))
}

// VectorStore layers a chromem similarity index over the SQL store. SQL
// remains canonical; index failures degrade to keyword search instead of
// failing the caller.
type VectorStore struct {
	sql        *SQLStore
	collection *chromem.Collection
	logger     *logger.Logger
}

// NewVectorStore opens (or creates) the index at path. An empty path keeps
// the index in memory, which the tests use.
func NewVectorStore(sqlStore *SQLStore, path string, embedder Embedder, log *logger.Logger) (*VectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("memory: vector store requires an embedder")
	}

	var (
		vdb *chromem.DB
		err error
	)
	if path == "" {
		vdb = chromem.NewDB()
	} else {
		vdb, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector index: %w", err)
		}
	}

	collection, err := vdb.GetOrCreateCollection(vectorCollection, nil, chromem.EmbeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector collection: %w", err)
	}

	return &VectorStore{
		sql:        sqlStore,
		collection: collection,
		logger:     log.WithFields(zap.String("component", "vector_memory")),
	}, nil
}

// Save writes to SQL first, then indexes the content. An indexing failure
// is logged and tolerated because keyword search still covers the record.
func (v *VectorStore) Save(ctx context.Context, rec *Record) error {
	if err := v.sql.Save(ctx, rec); err != nil {
		return err
	}

	doc := chromem.Document{
		ID:      rec.ID,
		Content: rec.Content,
		Metadata: map[string]string{
			"agent_id":    rec.AgentID,
			"memory_type": rec.Type,
			"importance":  string(rec.Importance),
		},
	}
	if err := v.collection.AddDocument(ctx, doc); err != nil {
		v.logger.Warn("failed to index memory, keyword search only",
			zap.String("memory_id", rec.ID),
			zap.Error(err))
	}
	return nil
}

// Get reads from the canonical store.
func (v *VectorStore) Get(ctx context.Context, id string) (*Record, error) {
	return v.sql.Get(ctx, id)
}

// Search queries the similarity index and resolves hits against SQL so
// expired or deleted records never surface. Index errors fall back to
// keyword search.
func (v *VectorStore) Search(ctx context.Context, agentID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	if query == "" {
		return v.sql.Search(ctx, agentID, query, limit)
	}

	topK := limit
	if count := v.collection.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	hits, err := v.collection.Query(ctx, query, topK, map[string]string{"agent_id": agentID}, nil)
	if err != nil {
		v.logger.Warn("vector query failed, falling back to keyword search", zap.Error(err))
		return v.sql.Search(ctx, agentID, query, limit)
	}

	now := time.Now().UTC()
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		rec, err := v.sql.Get(ctx, hit.ID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			continue
		}
		results = append(results, SearchResult{Record: *rec, Score: float64(hit.Similarity)})
	}
	return results, nil
}

// Recent reads from the canonical store.
func (v *VectorStore) Recent(ctx context.Context, agentID string, limit int) ([]Record, error) {
	return v.sql.Recent(ctx, agentID, limit)
}

// Summarize reads from the canonical store.
func (v *VectorStore) Summarize(ctx context.Context, agentID string) (*Summary, error) {
	return v.sql.Summarize(ctx, agentID)
}

// Delete removes the record from SQL and evicts it from the index. An index
// eviction failure is tolerated; Search resolves hits against SQL anyway.
func (v *VectorStore) Delete(ctx context.Context, agentID, id string) (bool, error) {
	removed, err := v.sql.Delete(ctx, agentID, id)
	if err != nil || !removed {
		return removed, err
	}
	if err := v.collection.Delete(ctx, nil, nil, id); err != nil {
		v.logger.Warn("failed to drop deleted entry from vector index",
			zap.String("memory_id", id),
			zap.Error(err))
	}
	return true, nil
}

// CleanupExpired removes expired records from the index first, then SQL.
func (v *VectorStore) CleanupExpired(ctx context.Context) (int64, error) {
	ids, err := v.sql.expiredIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		if err := v.collection.Delete(ctx, nil, nil, ids...); err != nil {
			v.logger.Warn("failed to drop expired entries from vector index", zap.Error(err))
		}
	}
	return v.sql.CleanupExpired(ctx)
}

// Close closes the canonical store; the index persists per write.
func (v *VectorStore) Close() error {
	return v.sql.Close()
}
