package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/password"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
)

// UserService registers accounts and resolves the caller's profile.
type UserService struct {
	users  users.Repository
	hasher password.Hasher
	logger logging.Logger
}

func NewUserService(m repomanager.RepositoryManager, hasher password.Hasher, logger logging.Logger) *UserService {
	return &UserService{
		users:  m.Users(),
		hasher: hasher,
		logger: logger.With("component", "users"),
	}
}

// Register creates an account. Input problems are common.ErrorValidation and
// a taken email is common.ErrorAlreadyExists.
func (s *UserService) Register(ctx context.Context, email, name, plaintext string) (*models.User, error) {
	addr, err := models.ParseEmail(email)
	if err != nil {
		return nil, err
	}
	name, err = models.ValidateName(name)
	if err != nil {
		return nil, err
	}
	if err := models.ValidatePassword(plaintext); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return nil, err
		}
		return nil, internal("hash password", err)
	}

	id, err := models.NewUserID()
	if err != nil {
		return nil, internal("generate user id", err)
	}

	user := &models.User{ID: id, Email: addr, Name: name, PasswordHash: hash}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, internal("save user", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", id.String())
	return user, nil
}

// CurrentUser returns the account behind an authenticated subject. A subject
// whose account is gone is common.ErrorUnauthorized.
func (s *UserService) CurrentUser(ctx context.Context, id models.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, internal("find user", err)
	}
	return user, nil
}
