package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one outstanding refresh grant, keyed by the JTI of the
// signed token it was issued as.
type RefreshToken struct {
	JTI       uuid.UUID
	UserID    UserID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the grant is dead at now. A record is live only
// while now is strictly before ExpiresAt.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair bundles a short-lived access token and a long-lived refresh token
// issued to the same user.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       UserID
}
