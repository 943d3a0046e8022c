package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

// Open builds the Pool for the configured driver. SQLite is the local-first
// default and keeps every record on the node; Postgres is opt-in for nodes
// that already run one.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*Pool, error) {
	switch cfg.Driver {
	case "sqlite":
		writer, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite writer: %w", err)
		}
		reader, err := OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("failed to open sqlite reader: %w", err)
		}
		log.Info("database opened",
			zap.String("driver", "sqlite"),
			zap.String("path", cfg.Path))
		return NewPool(sqlx.NewDb(writer, "sqlite3"), sqlx.NewDb(reader, "sqlite3")), nil

	case "postgres":
		conn, err := OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		pool := sqlx.NewDb(conn, "pgx")
		log.Info("database opened",
			zap.String("driver", "postgres"),
			zap.String("host", cfg.Host),
			zap.String("database", cfg.DBName))
		return NewPool(pool, pool), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
