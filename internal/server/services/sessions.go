// Package services holds the server's business logic: account registration
// and the login, refresh and logout session lifecycle.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/password"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
)

// SessionService turns password logins into token pairs and rotates or
// revokes refresh tokens. It holds no locks; single use of a refresh token
// rests on refreshtokens.Repository.Rotate.
type SessionService struct {
	users      users.Repository
	tokens     refreshtokens.Repository
	codec      *auth.Codec
	hasher     password.Hasher
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     logging.Logger
	now        func() time.Time
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionClock replaces time.Now. The codec should share the same clock.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

func NewSessionService(m repomanager.RepositoryManager, codec *auth.Codec, hasher password.Hasher,
	cfg *config.Config, logger logging.Logger, opts ...SessionOption) *SessionService {
	s := &SessionService{
		users:      m.Users(),
		tokens:     m.RefreshTokens(),
		codec:      codec,
		hasher:     hasher,
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
		logger:     logger.With("component", "sessions"),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Login checks the credentials and issues a token pair. Unknown email,
// missing hash and wrong password all yield common.ErrorUnauthorized.
func (s *SessionService) Login(ctx context.Context, email, plaintext string) (*models.TokenPair, error) {
	addr, err := models.ParseEmail(email)
	if err != nil {
		s.deny(ctx, "login", "malformed email")
		return nil, common.ErrorUnauthorized
	}

	user, err := s.users.FindByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.deny(ctx, "login", "unknown email")
			return nil, common.ErrorUnauthorized
		}
		return nil, internal("find user", err)
	}

	if user.PasswordHash == "" || !s.hasher.Verify(plaintext, user.PasswordHash) {
		s.deny(ctx, "login", "bad credentials", "user_id", user.ID.String())
		return nil, common.ErrorUnauthorized
	}

	pair, record, err := s.mintPair(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, record); err != nil {
		return nil, internal("save refresh token", err)
	}

	s.logger.Info(ctx, "login succeeded", "user_id", user.ID.String())
	return pair, nil
}

// Refresh consumes presented and returns a fresh pair for the same user.
// Every rejection of the token itself is common.ErrorUnauthorized; store
// failures wrap common.ErrorInternal.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*models.TokenPair, error) {
	claims, err := s.codec.ValidateAndExtract(presented, auth.KindRefresh, true)
	if err != nil {
		s.deny(ctx, "refresh", err.Error())
		return nil, common.ErrorUnauthorized
	}

	record, err := s.tokens.FindByJTI(ctx, claims.JTI)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.deny(ctx, "refresh", "unknown or consumed jti", "jti", claims.JTI.String())
			return nil, common.ErrorUnauthorized
		}
		return nil, internal("find refresh token", err)
	}

	if subtle.ConstantTimeCompare([]byte(record.Token), []byte(presented)) != 1 ||
		record.UserID != claims.Subject ||
		record.IsExpired(s.now()) {
		s.deny(ctx, "refresh", "record mismatch", "jti", claims.JTI.String())
		return nil, common.ErrorUnauthorized
	}

	if _, err := s.users.FindByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.deny(ctx, "refresh", "user gone", "user_id", claims.Subject.String())
			return nil, common.ErrorUnauthorized
		}
		return nil, internal("find user", err)
	}

	pair, next, err := s.mintPair(claims.Subject)
	if err != nil {
		return nil, err
	}

	removed, err := s.tokens.Rotate(ctx, claims.JTI, next)
	if err != nil {
		return nil, internal("rotate refresh token", err)
	}
	if !removed {
		s.deny(ctx, "refresh", "lost rotation race", "jti", claims.JTI.String())
		return nil, common.ErrorUnauthorized
	}

	s.logger.Debug(ctx, "refresh token rotated", "user_id", claims.Subject.String())
	return pair, nil
}

// Logout revokes the refresh token. An already expired token is accepted; a
// token that fails verification yields common.ErrInvalidToken. Revoking a
// token that is already gone succeeds.
func (s *SessionService) Logout(ctx context.Context, presented string) error {
	claims, err := s.codec.ExtractClaimsIgnoringExpiry(presented, auth.KindRefresh)
	if err != nil {
		return common.ErrInvalidToken
	}

	removed, err := s.tokens.DeleteByJTI(ctx, claims.JTI)
	if err != nil {
		return internal("revoke refresh token", err)
	}

	s.logger.Info(ctx, "logout", "user_id", claims.Subject.String(), "revoked", removed)
	return nil
}

// PurgeExpired drops refresh records that can no longer be used.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, internal("purge refresh tokens", err)
	}
	if n > 0 {
		s.logger.Debug(ctx, "purged expired refresh tokens", "count", n)
	}
	return n, nil
}

// AuthenticateAccessToken returns the subject of a valid, unexpired access
// token. Errors are common.ErrInvalidToken or common.ErrTokenExpired.
func (s *SessionService) AuthenticateAccessToken(token string) (models.UserID, error) {
	claims, err := s.codec.ValidateAndExtract(token, auth.KindAccess, true)
	if err != nil {
		return models.UserID{}, err
	}
	return claims.Subject, nil
}

// mintPair signs a new pair and builds the refresh record to store for it.
func (s *SessionService) mintPair(userID models.UserID) (*models.TokenPair, *models.RefreshToken, error) {
	access, err := s.codec.IssueAccessToken(userID, s.accessTTL)
	if err != nil {
		return nil, nil, internal("issue access token", err)
	}

	refresh, jti, err := s.codec.IssueRefreshToken(userID, s.refreshTTL)
	if err != nil {
		return nil, nil, internal("issue refresh token", err)
	}

	// Matches the exp claim, which is encoded at second precision.
	record := &models.RefreshToken{
		JTI:       jti,
		UserID:    userID,
		Token:     refresh,
		ExpiresAt: s.now().Add(s.refreshTTL).Truncate(time.Second),
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh, UserID: userID}, record, nil
}

func (s *SessionService) deny(ctx context.Context, op, reason string, args ...any) {
	s.logger.Info(ctx, op+" denied", append([]any{"reason", reason}, args...)...)
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrorInternal, op, err)
}
