package refreshtokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rt"

// rotateScript deletes KEYS[1] and stores ARGV[1] under KEYS[2] with a TTL of
// ARGV[2] milliseconds. It returns 0 when KEYS[1] is missing and -1 when
// KEYS[2] is taken.
var rotateScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
	return -1
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
return 1
`)

// ErrExpired is returned by Rotate when the replacement token has already
// expired, so there would be nothing to store.
var ErrExpired = errors.New("refresh token already expired")

// redisRecord is the JSON value stored under rt:{jti}.
type redisRecord struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisRepository keeps each refresh token as a key whose TTL matches the
// token expiry, so expired grants disappear on their own.
type RedisRepository struct {
	redis redis.UniversalClient
	now   func() time.Time
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{redis: client, now: time.Now}
}

func (r *RedisRepository) key(jti uuid.UUID) string {
	return redisKeyPrefix + ":" + jti.String()
}

// Save stores token. A token that is already expired is not written.
func (r *RedisRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	now := r.now().UTC()
	ttl := token.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	data, err := encodeRecord(token, now)
	if err != nil {
		return err
	}

	ok, err := r.redis.SetNX(ctx, r.key(token.JTI), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return common.ErrorAlreadyExists
	}
	return nil
}

func encodeRecord(token *models.RefreshToken, now time.Time) ([]byte, error) {
	token.CreatedAt, token.UpdatedAt = now, now
	data, err := json.Marshal(redisRecord{
		UserID:    token.UserID.String(),
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.UTC(),
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}
	return data, nil
}

func (r *RedisRepository) FindByJTI(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error) {
	data, err := r.redis.Get(ctx, r.key(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	userID, err := models.ParseUserID(rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}

	return &models.RefreshToken{
		JTI:       jti,
		UserID:    userID,
		Token:     rec.Token,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.CreatedAt,
	}, nil
}

func (r *RedisRepository) DeleteByJTI(ctx context.Context, jti uuid.UUID) (bool, error) {
	n, err := r.redis.Del(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}

// Rotate swaps the two keys in a single script run. An already expired next
// token fails with ErrExpired and leaves the old key in place.
func (r *RedisRepository) Rotate(ctx context.Context, oldJTI uuid.UUID, next *models.RefreshToken) (bool, error) {
	now := r.now().UTC()
	ttl := next.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return false, ErrExpired
	}
	ms := ttl.Milliseconds()
	if ms == 0 {
		ms = 1
	}

	data, err := encodeRecord(next, now)
	if err != nil {
		return false, err
	}

	keys := []string{r.key(oldJTI), r.key(next.JTI)}
	res, err := rotateScript.Run(ctx, r.redis, keys, data, ms).Int()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	switch res {
	case -1:
		return false, common.ErrorAlreadyExists
	case 0:
		return false, nil
	}
	return true, nil
}

// DeleteExpired is a no-op: redis evicts keys when their TTL runs out.
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
