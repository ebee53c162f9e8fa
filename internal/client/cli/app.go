package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/client/client"
	"github.com/dmitrijs2005/tokenkeeper/internal/client/config"
)

type App struct {
	config *config.Config
	client client.Client
	reader *bufio.Reader
	out    io.Writer
	email  string
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.ServerEndpointAddr, err)
	}
	return newApp(c, apiClient, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, cl client.Client, in io.Reader, out io.Writer) *App {
	return &App{config: c, client: cl, reader: bufio.NewReader(in), out: out}
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.client.Close(); err != nil {
			log.Printf("close client: %v", err)
		}
	}()

	fmt.Fprintln(a.out, "Welcome to tokenkeeper CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

func (a *App) isLoggedIn() bool {
	return a.client.LoggedIn()
}

func (a *App) getStatus() string {
	if !a.isLoggedIn() {
		return ""
	}
	return fmt.Sprintf("(%s)", a.email)
}

// withTimeout bounds a single server call by the configured request timeout.
func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}
