// Package users stores user accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Repository is the user store. Lookups of an absent user return
// common.ErrorNotFound. Save inserts or updates by id; an email already held
// by another user is common.ErrorAlreadyExists.
type Repository interface {
	Save(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email models.Email) (*models.User, error)
	FindByID(ctx context.Context, id models.UserID) (*models.User, error)
}
