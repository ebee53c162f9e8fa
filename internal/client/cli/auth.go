package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/client/client"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// Indirections so tests can feed input without a terminal.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	id, err := a.client.Register(ctx, email, name, string(password))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Registered user %s\n", id)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.client.Login(ctx, email, string(password)); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return errors.New("login failed: wrong email or password")
		}
		return err
	}

	a.email = email
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	me, err := a.client.WhoAmI(ctx)
	if err != nil {
		return a.sessionError(err)
	}

	fmt.Fprintf(a.out, "%s <%s> id=%s since %s\n", me.Name, me.Email, me.UserID, me.CreatedAt.Format("2006-01-02"))
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.client.Refresh(ctx); err != nil {
		return a.sessionError(err)
	}
	fmt.Fprintln(a.out, "Tokens refreshed")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	err := a.client.Logout(ctx)
	a.email = ""
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Ping(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.client.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Server is up")
	return nil
}

// sessionError forgets the local email once the server stops accepting
// the session.
func (a *App) sessionError(err error) error {
	if errors.Is(err, client.ErrUnauthorized) && !a.isLoggedIn() {
		a.email = ""
		return errors.New("session ended, please log in again")
	}
	return err
}
