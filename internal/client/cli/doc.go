// Package cli provides the interactive tokenkeeper command-line client.
//
// It wires configuration and the gRPC session client into a small REPL:
//
//	register   create an account
//	login      start a session
//	whoami     show the current user (refreshes an expired access token)
//	refresh    rotate the token pair
//	logout     revoke the refresh token and forget the session
//	ping       check the server
//	exit|quit  leave
//
// The REPL is started with App.Run and blocks until the user exits or
// input ends.
package cli
