// Package repomanager chooses and wires the storage backends for users and
// refresh tokens.
package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	RefreshTokens() refreshtokens.Repository
	Close() error
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open builds the manager described by cfg. Users live in PostgreSQL when a
// DSN is configured and in memory otherwise; refresh tokens follow
// cfg.RefreshTokenBackend.
func Open(ctx context.Context, cfg *config.Config) (RepositoryManager, error) {
	var rdb *redis.Client
	if cfg.RefreshTokenBackend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	if cfg.DatabaseDSN == "" {
		if cfg.RefreshTokenBackend == config.BackendPostgres {
			return nil, errors.New("postgres refresh token backend requires a database DSN")
		}
		return NewMemoryRepositoryManager(rdb), nil
	}

	db, err := sqlOpen("pgx", cfg.DatabaseDSN)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresRepositoryManager(db, cfg.RefreshTokenBackend == config.BackendMemory, rdb), nil
}
