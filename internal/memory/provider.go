package memory

import (
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/db"
)

// Provide builds the configured store plus its background cleaner and
// returns a cleanup function for shutdown.
func Provide(cfg config.MemoryConfig, pool *db.Pool, embedder Embedder, log *logger.Logger) (Store, func() error, error) {
	sqlStore, err := NewSQLStore(pool, log)
	if err != nil {
		return nil, nil, err
	}

	var store Store = sqlStore
	if cfg.Backend == "vector" {
		if embedder == nil {
			log.Warn("vector memory backend requested without an embedder, using keyword store")
		} else {
			vectorStore, err := NewVectorStore(sqlStore, cfg.VectorPath, embedder, log)
			if err != nil {
				return nil, nil, err
			}
			store = vectorStore
		}
	}

	var cleaner *Cleaner
	if cfg.CleanupInterval > 0 {
		cleaner = NewCleaner(store, cfg.CleanupIntervalDuration(), log)
		if err := cleaner.Start(); err != nil {
			return nil, nil, err
		}
	}

	cleanup := func() error {
		if cleaner != nil {
			cleaner.Stop()
		}
		return store.Close()
	}
	return store, cleanup, nil
}
