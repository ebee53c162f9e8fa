package repomanager

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

// PostgresRepositoryManager keeps users in PostgreSQL. Refresh tokens go to
// PostgreSQL as well unless a redis client or the memory store is chosen.
type PostgresRepositoryManager struct {
	db            *sql.DB
	redis         *redis.Client
	users         users.Repository
	refreshTokens refreshtokens.Repository
}

// NewPostgresRepositoryManager wires repositories over db. When rdb is not
// nil refresh tokens are stored in redis; otherwise memoryTokens selects the
// in-process store over the refresh_tokens table.
func NewPostgresRepositoryManager(db *sql.DB, memoryTokens bool, rdb *redis.Client) *PostgresRepositoryManager {
	m := &PostgresRepositoryManager{
		db:    db,
		redis: rdb,
		users: users.NewPostgresRepository(db),
	}
	switch {
	case rdb != nil:
		m.refreshTokens = refreshtokens.NewRedisRepository(rdb)
	case memoryTokens:
		m.refreshTokens = refreshtokens.NewMemoryRepository()
	default:
		m.refreshTokens = refreshtokens.NewPostgresRepository(db)
	}
	return m
}

func (m *PostgresRepositoryManager) Users() users.Repository { return m.users }

func (m *PostgresRepositoryManager) RefreshTokens() refreshtokens.Repository { return m.refreshTokens }

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded goose migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, ".")
}

func (m *PostgresRepositoryManager) Close() error {
	var errs []error
	if m.redis != nil {
		errs = append(errs, m.redis.Close())
	}
	errs = append(errs, m.db.Close())
	return errors.Join(errs...)
}
