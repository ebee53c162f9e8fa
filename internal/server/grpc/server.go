// Package grpc exposes the session and user services over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tokenkeeper/internal/api"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"google.golang.org/grpc"
)

type sessionSvc interface {
	Login(ctx context.Context, email, password string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	AuthenticateAccessToken(token string) (models.UserID, error)
}

type userSvc interface {
	Register(ctx context.Context, email, name, password string) (*models.User, error)
	CurrentUser(ctx context.Context, id models.UserID) (*models.User, error)
}

type GRPCServer struct {
	address  string
	sessions sessionSvc
	users    userSvc
	logger   logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, sessions sessionSvc, users userSvc) *GRPCServer {
	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		sessions: sessions,
		users:    users,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	api.RegisterSessionServiceServer(srv, s)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
