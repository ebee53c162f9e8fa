package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

// MemoryRepositoryManager keeps users in memory, for development and tests.
// Refresh tokens go to redis when a client is given.
type MemoryRepositoryManager struct {
	redis         *redis.Client
	users         *users.MemoryRepository
	refreshTokens refreshtokens.Repository
}

func NewMemoryRepositoryManager(rdb *redis.Client) *MemoryRepositoryManager {
	m := &MemoryRepositoryManager{
		redis: rdb,
		users: users.NewMemoryRepository(),
	}
	if rdb != nil {
		m.refreshTokens = refreshtokens.NewRedisRepository(rdb)
	} else {
		m.refreshTokens = refreshtokens.NewMemoryRepository()
	}
	return m
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Users() users.Repository { return m.users }

func (m *MemoryRepositoryManager) RefreshTokens() refreshtokens.Repository { return m.refreshTokens }

func (m *MemoryRepositoryManager) Close() error {
	if m.redis != nil {
		return m.redis.Close()
	}
	return nil
}
