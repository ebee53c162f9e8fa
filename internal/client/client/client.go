package client

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/api"
)

// Client is the session API as seen by the CLI.
type Client interface {
	Close() error
	Register(ctx context.Context, email, name, password string) (string, error)
	Login(ctx context.Context, email, password string) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) (*api.MeResponse, error)
	Ping(ctx context.Context) error
	LoggedIn() bool
}
