// Package auth issues and verifies the HS256 JWTs used as access and
// refresh tokens.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest signing secret NewCodec accepts, in bytes.
const MinSecretLength = 32

// Kind tells access tokens and refresh tokens apart.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// tokenClaims is the JWT payload.
type tokenClaims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"token_type"`
}

// Claims is the verified content of a token.
type Claims struct {
	Subject   models.UserID
	JTI       uuid.UUID
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies tokens for one issuer/audience pair. It is safe
// for concurrent use.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	parser   *jwt.Parser
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces time.Now as the source of issue and validation time.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a Codec signing with secret. The secret is copied.
func NewCodec(secret []byte, issuer, audience string, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience are required")
	}

	c := &Codec{
		secret:   slices.Clone(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
		// Expiry is checked by hand so an expired token can still be read
		// for logout and told apart from a forged one.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// IssueAccessToken signs a token for subject valid for ttl.
func (c *Codec) IssueAccessToken(subject models.UserID, ttl time.Duration) (string, error) {
	token, _, err := c.issue(subject, KindAccess, ttl)
	return token, err
}

// IssueRefreshToken signs a token for subject valid for ttl and returns its
// JTI, which keys the stored refresh record.
func (c *Codec) IssueRefreshToken(subject models.UserID, ttl time.Duration) (string, uuid.UUID, error) {
	return c.issue(subject, KindRefresh, ttl)
}

func (c *Codec) issue(subject models.UserID, kind Kind, ttl time.Duration) (string, uuid.UUID, error) {
	if subject.IsZero() {
		return "", uuid.Nil, errors.New("token subject is empty")
	}
	if ttl <= 0 {
		return "", uuid.Nil, errors.New("token ttl must be positive")
	}

	jti, err := uuid.NewRandom()
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("generate jti: %w", err)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ID:        jti.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, nil
}

// ValidateAndExtract verifies token and returns its claims. Any structural,
// signature, issuer or audience problem, or a token of another kind, yields
// common.ErrInvalidToken. When requireUnexpired is set, a token whose exp is
// not after now yields common.ErrTokenExpired.
func (c *Codec) ValidateAndExtract(token string, kind Kind, requireUnexpired bool) (*Claims, error) {
	tc := &tokenClaims{}
	parsed, err := c.parser.ParseWithClaims(token, tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, common.ErrInvalidToken
	}
	if tc.Kind != kind {
		return nil, common.ErrInvalidToken
	}

	rc := &tc.RegisteredClaims

	if rc.Issuer != c.issuer || !slices.Contains(rc.Audience, c.audience) {
		return nil, common.ErrInvalidToken
	}
	if rc.ExpiresAt == nil {
		return nil, common.ErrInvalidToken
	}

	sub, err := models.ParseUserID(rc.Subject)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	jti, err := uuid.Parse(rc.ID)
	if err != nil || jti == uuid.Nil {
		return nil, common.ErrInvalidToken
	}

	claims := &Claims{
		Subject:   sub,
		JTI:       jti,
		Kind:      tc.Kind,
		ExpiresAt: rc.ExpiresAt.Time,
	}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}

	if requireUnexpired && !c.now().Before(claims.ExpiresAt) {
		return nil, common.ErrTokenExpired
	}
	return claims, nil
}

// ExtractClaimsIgnoringExpiry verifies token like ValidateAndExtract but
// accepts it after expiry.
func (c *Codec) ExtractClaimsIgnoringExpiry(token string, kind Kind) (*Claims, error) {
	return c.ValidateAndExtract(token, kind, false)
}
