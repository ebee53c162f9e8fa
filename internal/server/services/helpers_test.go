package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/password"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errStoreDown = errors.New("store down")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testManager struct {
	users  users.Repository
	tokens refreshtokens.Repository
}

func (m *testManager) RunMigrations(context.Context) error     { return nil }
func (m *testManager) Users() users.Repository                 { return m.users }
func (m *testManager) RefreshTokens() refreshtokens.Repository { return m.tokens }
func (m *testManager) Close() error                            { return nil }

// countingTokens records mutations made through it.
type countingTokens struct {
	refreshtokens.Repository
	mu      sync.Mutex
	saves   int
	deletes int
}

func (c *countingTokens) Save(ctx context.Context, t *models.RefreshToken) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.Repository.Save(ctx, t)
}

func (c *countingTokens) DeleteByJTI(ctx context.Context, jti uuid.UUID) (bool, error) {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.Repository.DeleteByJTI(ctx, jti)
}

// Rotate counts as a delete, plus a save when the old record was removed.
func (c *countingTokens) Rotate(ctx context.Context, oldJTI uuid.UUID, next *models.RefreshToken) (bool, error) {
	ok, err := c.Repository.Rotate(ctx, oldJTI, next)
	c.mu.Lock()
	c.deletes++
	if ok {
		c.saves++
	}
	c.mu.Unlock()
	return ok, err
}

func (c *countingTokens) mutations() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves, c.deletes
}

// faultyTokens fails selected operations.
type faultyTokens struct {
	refreshtokens.Repository
	saveErr, findErr, deleteErr, rotateErr, purgeErr error
	rotateMiss                                       bool
}

func (f *faultyTokens) Save(ctx context.Context, t *models.RefreshToken) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Repository.Save(ctx, t)
}

func (f *faultyTokens) FindByJTI(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Repository.FindByJTI(ctx, jti)
}

func (f *faultyTokens) DeleteByJTI(ctx context.Context, jti uuid.UUID) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return f.Repository.DeleteByJTI(ctx, jti)
}

func (f *faultyTokens) Rotate(ctx context.Context, oldJTI uuid.UUID, next *models.RefreshToken) (bool, error) {
	if f.rotateErr != nil {
		return false, f.rotateErr
	}
	if f.rotateMiss {
		return false, nil
	}
	return f.Repository.Rotate(ctx, oldJTI, next)
}

func (f *faultyTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return f.Repository.DeleteExpired(ctx, now)
}

// faultyUsers fails selected operations.
type faultyUsers struct {
	users.Repository
	saveErr, byEmailErr, byIDErr error
}

func (f *faultyUsers) Save(ctx context.Context, u *models.User) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Repository.Save(ctx, u)
}

func (f *faultyUsers) FindByEmail(ctx context.Context, e models.Email) (*models.User, error) {
	if f.byEmailErr != nil {
		return nil, f.byEmailErr
	}
	return f.Repository.FindByEmail(ctx, e)
}

func (f *faultyUsers) FindByID(ctx context.Context, id models.UserID) (*models.User, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.Repository.FindByID(ctx, id)
}

type fixture struct {
	clock    *clock
	users    *faultyUsers
	tokens   *faultyTokens
	counter  *countingTokens
	memory   *refreshtokens.MemoryRepository
	sessions *SessionService
	accounts *UserService
}

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = time.Hour
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	cfg := &config.Config{
		SecretKey:                    "0123456789abcdef0123456789abcdef",
		Issuer:                       "tokenkeeper",
		Audience:                     "clients",
		AccessTokenValidityDuration:  testAccessTTL,
		RefreshTokenValidityDuration: testRefreshTTL,
	}
	codec, err := auth.NewCodec([]byte(cfg.SecretKey), cfg.Issuer, cfg.Audience, auth.WithClock(clk.now))
	require.NoError(t, err)

	mem := refreshtokens.NewMemoryRepository()
	counter := &countingTokens{Repository: mem}
	tokens := &faultyTokens{Repository: counter}
	us := &faultyUsers{Repository: users.NewMemoryRepository()}
	m := &testManager{users: us, tokens: tokens}
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	logger := logging.NewNop()

	return &fixture{
		clock:    clk,
		users:    us,
		tokens:   tokens,
		counter:  counter,
		memory:   mem,
		sessions: NewSessionService(m, codec, hasher, cfg, logger, WithSessionClock(clk.now)),
		accounts: NewUserService(m, hasher, logger),
	}
}

func (f *fixture) register(t *testing.T, email, pw string) *models.User {
	t.Helper()
	u, err := f.accounts.Register(context.Background(), email, "Test User", pw)
	require.NoError(t, err)
	return u
}
