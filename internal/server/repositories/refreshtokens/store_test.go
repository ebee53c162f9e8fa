package refreshtokens

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisRepository(client)
}

// stores returns every non-SQL backend so behaviour common to all of them
// is checked once.
func stores(t *testing.T) map[string]Repository {
	_, rr := newTestRedis(t)
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"redis":  rr,
	}
}

func TestStores_SaveFindDelete(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rt := sampleToken(t, time.Now().Add(time.Hour).Truncate(time.Second))

			require.NoError(t, repo.Save(ctx, rt))

			got, err := repo.FindByJTI(ctx, rt.JTI)
			require.NoError(t, err)
			assert.Equal(t, rt.JTI, got.JTI)
			assert.Equal(t, rt.UserID, got.UserID)
			assert.Equal(t, rt.Token, got.Token)
			assert.True(t, rt.ExpiresAt.Equal(got.ExpiresAt))

			assert.ErrorIs(t, repo.Save(ctx, rt), common.ErrorAlreadyExists)

			removed, err := repo.DeleteByJTI(ctx, rt.JTI)
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = repo.DeleteByJTI(ctx, rt.JTI)
			require.NoError(t, err)
			assert.False(t, removed)

			_, err = repo.FindByJTI(ctx, rt.JTI)
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestStores_DeleteIsExclusive(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rt := sampleToken(t, time.Now().Add(time.Hour))
			require.NoError(t, repo.Save(ctx, rt))

			var (
				wg      sync.WaitGroup
				winners atomic.Int32
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := repo.DeleteByJTI(ctx, rt.JTI)
					if err == nil && ok {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestStores_Rotate(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := sampleToken(t, time.Now().Add(time.Hour))
			require.NoError(t, repo.Save(ctx, old))

			next := sampleToken(t, time.Now().Add(2*time.Hour))
			ok, err := repo.Rotate(ctx, old.JTI, next)
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = repo.FindByJTI(ctx, old.JTI)
			assert.ErrorIs(t, err, common.ErrorNotFound)
			got, err := repo.FindByJTI(ctx, next.JTI)
			require.NoError(t, err)
			assert.Equal(t, next.Token, got.Token)

			// the old grant is spent, a second rotation stores nothing
			again := sampleToken(t, time.Now().Add(2*time.Hour))
			ok, err = repo.Rotate(ctx, old.JTI, again)
			require.NoError(t, err)
			assert.False(t, ok)
			_, err = repo.FindByJTI(ctx, again.JTI)
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestStores_RotateConflictKeepsOld(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := sampleToken(t, time.Now().Add(time.Hour))
			taken := sampleToken(t, time.Now().Add(time.Hour))
			require.NoError(t, repo.Save(ctx, old))
			require.NoError(t, repo.Save(ctx, taken))

			next := sampleToken(t, time.Now().Add(time.Hour))
			next.JTI = taken.JTI
			ok, err := repo.Rotate(ctx, old.JTI, next)
			assert.ErrorIs(t, err, common.ErrorAlreadyExists)
			assert.False(t, ok)

			_, err = repo.FindByJTI(ctx, old.JTI)
			assert.NoError(t, err)
		})
	}
}

func TestStores_RotateIsExclusive(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := sampleToken(t, time.Now().Add(time.Hour))
			require.NoError(t, repo.Save(ctx, old))

			var (
				wg      sync.WaitGroup
				winners atomic.Int32
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					next := &models.RefreshToken{
						JTI:       uuid.New(),
						UserID:    old.UserID,
						Token:     "next",
						ExpiresAt: time.Now().Add(time.Hour),
					}
					ok, err := repo.Rotate(ctx, old.JTI, next)
					if err == nil && ok {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestStores_FindUnknown(t *testing.T) {
	for name, repo := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.FindByJTI(context.Background(), uuid.New())
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestMemory_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Now()

	live := sampleToken(t, now.Add(time.Minute))
	dead := sampleToken(t, now.Add(-time.Minute))
	edge := sampleToken(t, now)
	for _, rt := range []*models.RefreshToken{live, dead, edge} {
		require.NoError(t, repo.Save(ctx, rt))
	}

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, repo.Len())

	_, err = repo.FindByJTI(ctx, live.JTI)
	assert.NoError(t, err)
}

func TestRedis_KeyExpiresWithToken(t *testing.T) {
	ctx := context.Background()
	mr, repo := newTestRedis(t)

	rt := sampleToken(t, time.Now().Add(10*time.Second))
	require.NoError(t, repo.Save(ctx, rt))

	key := "rt:" + rt.JTI.String()
	require.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.True(t, ttl > 0 && ttl <= 10*time.Second, "ttl %s", ttl)

	mr.FastForward(11 * time.Second)
	_, err := repo.FindByJTI(ctx, rt.JTI)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	n, err := repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedis_SaveAlreadyExpiredIsDropped(t *testing.T) {
	ctx := context.Background()
	mr, repo := newTestRedis(t)

	rt := sampleToken(t, time.Now().Add(-time.Second))
	require.NoError(t, repo.Save(ctx, rt))
	assert.False(t, mr.Exists("rt:"+rt.JTI.String()))
}

func TestRedis_RotateSetsTTL(t *testing.T) {
	ctx := context.Background()
	mr, repo := newTestRedis(t)

	old := sampleToken(t, time.Now().Add(time.Hour))
	require.NoError(t, repo.Save(ctx, old))

	next := sampleToken(t, time.Now().Add(30*time.Second))
	ok, err := repo.Rotate(ctx, old.JTI, next)
	require.NoError(t, err)
	require.True(t, ok)

	ttl := mr.TTL("rt:" + next.JTI.String())
	assert.True(t, ttl > 0 && ttl <= 30*time.Second, "ttl %s", ttl)
	assert.False(t, mr.Exists("rt:"+old.JTI.String()))
}

func TestRedis_RotateExpiredKeepsOld(t *testing.T) {
	ctx := context.Background()
	mr, repo := newTestRedis(t)

	old := sampleToken(t, time.Now().Add(time.Hour))
	require.NoError(t, repo.Save(ctx, old))

	next := sampleToken(t, time.Now().Add(-time.Second))
	ok, err := repo.Rotate(ctx, old.JTI, next)
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, ok)
	assert.True(t, mr.Exists("rt:"+old.JTI.String()))
	assert.False(t, mr.Exists("rt:"+next.JTI.String()))
}

func TestRedis_RotateSubMillisecondTTL(t *testing.T) {
	ctx := context.Background()
	mr, repo := newTestRedis(t)
	now := time.Now()
	repo.now = func() time.Time { return now }

	old := sampleToken(t, now.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, old))

	next := sampleToken(t, now.Add(500*time.Microsecond))
	ok, err := repo.Rotate(ctx, old.JTI, next)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("rt:"+next.JTI.String()))
}

func TestRedis_CorruptValue(t *testing.T) {
	ctx := context.Background()
	mr, repo := newTestRedis(t)

	jti := uuid.New()
	require.NoError(t, mr.Set("rt:"+jti.String(), "{not json"))

	_, err := repo.FindByJTI(ctx, jti)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestRedis_BackendDown(t *testing.T) {
	ctx := context.Background()
	mr, repo := newTestRedis(t)
	mr.Close()

	_, err := repo.FindByJTI(ctx, uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.DeleteByJTI(ctx, uuid.New())
	assert.Error(t, err)

	assert.Error(t, repo.Save(ctx, sampleToken(t, time.Now().Add(time.Hour))))

	_, err = repo.Rotate(ctx, uuid.New(), sampleToken(t, time.Now().Add(time.Hour)))
	assert.Error(t, err)
}
