package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps refresh tokens in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]models.RefreshToken
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tokens: make(map[uuid.UUID]models.RefreshToken),
		now:    time.Now,
	}
}

func (r *MemoryRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token.JTI]; ok {
		return common.ErrorAlreadyExists
	}
	now := r.now().UTC()
	token.CreatedAt, token.UpdatedAt = now, now
	r.tokens[token.JTI] = *token
	return nil
}

func (r *MemoryRepository) FindByJTI(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[jti]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) DeleteByJTI(ctx context.Context, jti uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[jti]; !ok {
		return false, nil
	}
	delete(r.tokens, jti)
	return true, nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, oldJTI uuid.UUID, next *models.RefreshToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[oldJTI]; !ok {
		return false, nil
	}
	if _, ok := r.tokens[next.JTI]; ok {
		return false, common.ErrorAlreadyExists
	}
	delete(r.tokens, oldJTI)
	now := r.now().UTC()
	next.CreatedAt, next.UpdatedAt = now, now
	r.tokens[next.JTI] = *next
	return true, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for jti, t := range r.tokens {
		if t.IsExpired(now) {
			delete(r.tokens, jti)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
