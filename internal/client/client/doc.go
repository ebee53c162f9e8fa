// Package client contains the client side of the tokenkeeper session API.
//
// GRPCClient implements Client over a gRPC connection. It keeps the current
// token pair in memory, attaches the access token to every call through a
// unary interceptor and, when the server answers "token expired", rotates
// the pair with the refresh token and retries the call once.
//
// gRPC status codes are mapped to the sentinel errors in errors.go so
// callers can match them with errors.Is.
package client
