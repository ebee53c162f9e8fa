package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// parseFlags overlays values from command-line flags.
//
//	-a string   gRPC bind address
//	-d string   PostgreSQL DSN
//	-b string   refresh token backend: postgres, redis or memory; unset follows -d
//	-redis string  redis address
//	-s string   JWT HMAC secret key
//	-t duration access token validity, e.g. 15m
//	-r duration refresh token validity, e.g. 168h
//	-l string   log level
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-b", "-redis", "-s", "-t", "-r", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RefreshTokenBackend, "b", config.RefreshTokenBackend, "refresh token backend")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token validity")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}
