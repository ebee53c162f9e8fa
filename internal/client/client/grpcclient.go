package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tokenkeeper/internal/api"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.SessionServiceClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	access, refresh := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	if method == api.MethodRefresh || refresh == "" {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}

	if rerr := s.rotate(ctx, refresh); rerr != nil {
		return rerr
	}

	access, _ = s.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// rotate exchanges refresh for a new pair. A rejected refresh token clears
// the session.
func (s *GRPCClient) rotate(ctx context.Context, refresh string) error {
	resp, err := s.client.Refresh(ctx, &api.RefreshRequest{RefreshToken: refresh})
	if err != nil {
		if status.Code(err) == codes.Unauthenticated {
			s.setTokens("", "")
		}
		return err
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

// NewGRPCClient dials endpointURL lazily. Extra options are appended after
// the defaults, so tests can swap the dialer.
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = api.NewSessionServiceClient(conn)
	return c, nil
}

func (s *GRPCClient) Register(ctx context.Context, email, name, password string) (string, error) {
	resp, err := s.client.Register(ctx, &api.RegisterRequest{Email: email, Name: name, Password: password})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.UserID, nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) error {
	resp, err := s.client.Login(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return s.mapError(err)
	}
	s.setTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (s *GRPCClient) Refresh(ctx context.Context) error {
	_, refresh := s.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}
	if err := s.rotate(ctx, refresh); err != nil {
		return s.mapError(err)
	}
	return nil
}

// Logout revokes the refresh token on the server. Local tokens are dropped
// even when the server call fails.
func (s *GRPCClient) Logout(ctx context.Context) error {
	_, refresh := s.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}
	s.setTokens("", "")

	if _, err := s.client.Logout(ctx, &api.LogoutRequest{RefreshToken: refresh}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) WhoAmI(ctx context.Context) (*api.MeResponse, error) {
	if !s.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	resp, err := s.client.Me(ctx, &api.MeRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	_, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) LoggedIn() bool {
	_, refresh := s.tokens()
	return refresh != ""
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidInput, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
