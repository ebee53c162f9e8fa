package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/api"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	user, err := s.users.Register(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "register", err)
	}
	return &api.RegisterResponse{UserID: user.ID.String()}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.TokenPairResponse, error) {
	pair, err := s.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "login", err)
	}
	return &api.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       pair.UserID.String(),
	}, nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *api.RefreshRequest) (*api.TokenPairResponse, error) {
	pair, err := s.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, "refresh", err)
	}
	return &api.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       pair.UserID.String(),
	}, nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *api.LogoutRequest) (*api.LogoutResponse, error) {
	if err := s.sessions.Logout(ctx, req.RefreshToken); err != nil {
		return nil, s.toStatus(ctx, "logout", err)
	}
	return &api.LogoutResponse{}, nil
}

func (s *GRPCServer) Me(ctx context.Context, _ *api.MeRequest) (*api.MeResponse, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Internal, "internal error")
	}
	user, err := s.users.CurrentUser(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, "me", err)
	}
	return &api.MeResponse{
		UserID:    user.ID.String(),
		Email:     user.Email.String(),
		Name:      user.Name,
		CreatedAt: user.CreatedAt,
	}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *api.PingRequest) (*api.PingResponse, error) {
	return &api.PingResponse{Status: "OK"}, nil
}

// toStatus maps service errors to gRPC statuses. Denials carry a fixed
// message so the client cannot tell which check failed; internal causes are
// logged and never sent.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.InvalidArgument, "invalid token")
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	default:
		s.logger.Error(ctx, "request failed", "op", op, "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
