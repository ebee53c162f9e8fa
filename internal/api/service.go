package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "tokenkeeper.v1.SessionService"

// Full method names, as seen by interceptors.
const (
	MethodRegister = "/" + ServiceName + "/Register"
	MethodLogin    = "/" + ServiceName + "/Login"
	MethodRefresh  = "/" + ServiceName + "/Refresh"
	MethodLogout   = "/" + ServiceName + "/Logout"
	MethodMe       = "/" + ServiceName + "/Me"
	MethodPing     = "/" + ServiceName + "/Ping"
)

// SessionServiceServer is implemented by the server transport.
type SessionServiceServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*TokenPairResponse, error)
	Refresh(context.Context, *RefreshRequest) (*TokenPairResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	Me(context.Context, *MeRequest) (*MeResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// unary adapts a typed method to grpc.MethodHandler.
func unary[Req, Resp any](fullMethod string, call func(SessionServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(SessionServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary(MethodRegister, SessionServiceServer.Register)},
		{MethodName: "Login", Handler: unary(MethodLogin, SessionServiceServer.Login)},
		{MethodName: "Refresh", Handler: unary(MethodRefresh, SessionServiceServer.Refresh)},
		{MethodName: "Logout", Handler: unary(MethodLogout, SessionServiceServer.Logout)},
		{MethodName: "Me", Handler: unary(MethodMe, SessionServiceServer.Me)},
		{MethodName: "Ping", Handler: unary(MethodPing, SessionServiceServer.Ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tokenkeeper/v1/session.json",
}

// SessionServiceClient is the client side of SessionService.
type SessionServiceClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenPairResponse, error)
	Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*TokenPairResponse, error)
	Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error)
	Me(ctx context.Context, in *MeRequest, opts ...grpc.CallOption) (*MeResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
}

type sessionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionServiceClient returns a client that always speaks the JSON codec.
func NewSessionServiceClient(cc grpc.ClientConnInterface) SessionServiceClient {
	return &sessionServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sessionServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *sessionServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenPairResponse, error) {
	return invoke[TokenPairResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *sessionServiceClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*TokenPairResponse, error) {
	return invoke[TokenPairResponse](ctx, c.cc, MethodRefresh, in, opts)
}

func (c *sessionServiceClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c.cc, MethodLogout, in, opts)
}

func (c *sessionServiceClient) Me(ctx context.Context, in *MeRequest, opts ...grpc.CallOption) (*MeResponse, error) {
	return invoke[MeResponse](ctx, c.cc, MethodMe, in, opts)
}

func (c *sessionServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}
