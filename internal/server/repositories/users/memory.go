package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// MemoryRepository keeps users in process memory. It backs the server when
// no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[models.UserID]models.User
	byEmail map[models.Email]models.UserID
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[models.UserID]models.User),
		byEmail: make(map[models.Email]models.UserID),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Save(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byEmail[user.Email]; ok && owner != user.ID {
		return common.ErrorAlreadyExists
	}

	now := r.now().UTC()
	if prev, ok := r.byID[user.ID]; ok {
		delete(r.byEmail, prev.Email)
		user.CreatedAt = prev.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email models.Email) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id models.UserID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}
