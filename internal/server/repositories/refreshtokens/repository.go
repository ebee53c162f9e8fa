// Package refreshtokens stores outstanding refresh grants keyed by JTI.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/uuid"
)

// Repository is the refresh token store.
//
// FindByJTI returns common.ErrorNotFound for an absent record. DeleteByJTI
// is idempotent; its bool reports whether this call removed the record.
type Repository interface {
	Save(ctx context.Context, token *models.RefreshToken) error
	FindByJTI(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error)
	DeleteByJTI(ctx context.Context, jti uuid.UUID) (bool, error)
	// Rotate atomically removes oldJTI and stores next. When oldJTI is
	// already gone it reports false and stores nothing, so concurrent
	// rotations of one token agree on a single winner.
	Rotate(ctx context.Context, oldJTI uuid.UUID, next *models.RefreshToken) (bool, error)
	// DeleteExpired removes records whose expiry is not after now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
