// Package server wires configuration, storage, services and the gRPC
// transport into a runnable application.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	gs "github.com/dmitrijs2005/tokenkeeper/internal/server/grpc"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/password"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"golang.org/x/crypto/bcrypt"
)

// purger is the part of SessionService the background sweeper needs.
type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.RepositoryManager
	sessions    *services.SessionService
	grpcServer  *gs.GRPCServer
	purgeTarget purger
}

// NewApp validates cfg, opens storage, applies migrations and builds the
// services.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogBackend, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	repos, err := repomanager.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app, err := newApp(cfg, logger, repos)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}
	return app, nil
}

func newApp(cfg *config.Config, logger logging.Logger, repos repomanager.RepositoryManager) (*App, error) {
	codec, err := auth.NewCodec([]byte(cfg.SecretKey), cfg.Issuer, cfg.Audience)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	hasher := password.NewBcryptHasher(bcrypt.DefaultCost)

	sessions := services.NewSessionService(repos, codec, hasher, cfg, logger)
	users := services.NewUserService(repos, hasher, logger)

	return &App{
		config:      cfg,
		logger:      logger,
		repos:       repos,
		sessions:    sessions,
		grpcServer:  gs.NewGRPCServer(cfg.EndpointAddrGRPC, logger, sessions, users),
		purgeTarget: sessions,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

// runPurger sweeps expired refresh tokens every interval until ctx is done.
func (app *App) runPurger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.purgeTarget.PurgeExpired(ctx); err != nil {
				app.logger.Warn(ctx, "refresh token purge failed", "error", err)
			}
		}
	}
}

// Run serves until a termination signal arrives or ctx is cancelled, then
// releases storage.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runPurger(ctx, app.config.PurgeInterval)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(context.Background(), "storage close failed", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
	_ = logging.Sync(app.logger)
}
