// Package config assembles server settings from defaults, an optional JSON
// file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
)

// Refresh token storage backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds runtime settings for the tokenkeeper server.
type Config struct {
	EndpointAddrGRPC string
	// DatabaseDSN is a pgx DSN. Empty keeps users in memory.
	DatabaseDSN string
	// RefreshTokenBackend left empty resolves to postgres when a DSN is
	// set and to memory otherwise.
	RefreshTokenBackend string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int

	SecretKey                    string
	Issuer                       string
	Audience                     string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration

	// PurgeInterval is how often expired refresh tokens are swept.
	// Zero disables the sweeper.
	PurgeInterval time.Duration

	LogBackend string
	LogLevel   string
}

// LoadDefaults populates Config with development defaults. The secret is
// intentionally left empty so a deployment has to provide one.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.RefreshTokenBackend = ""
	c.RedisAddr = "localhost:6379"
	c.RedisDB = 0
	c.Issuer = "tokenkeeper"
	c.Audience = "tokenkeeper-clients"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 7 * 24 * time.Hour
	c.PurgeInterval = 10 * time.Minute
	c.LogBackend = "slog"
	c.LogLevel = "info"
}

// resolveBackend fills in RefreshTokenBackend when nothing configured it.
func (c *Config) resolveBackend() {
	if c.RefreshTokenBackend != "" {
		return
	}
	if c.DatabaseDSN != "" {
		c.RefreshTokenBackend = BackendPostgres
		return
	}
	c.RefreshTokenBackend = BackendMemory
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SecretKey) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("secret key must be at least %d bytes", auth.MinSecretLength))
	}
	if c.Issuer == "" {
		errs = append(errs, errors.New("issuer is empty"))
	}
	if c.Audience == "" {
		errs = append(errs, errors.New("audience is empty"))
	}
	// exp is encoded in whole seconds
	if c.AccessTokenValidityDuration < time.Second {
		errs = append(errs, errors.New("access token validity must be at least 1s"))
	}
	if c.RefreshTokenValidityDuration < time.Second {
		errs = append(errs, errors.New("refresh token validity must be at least 1s"))
	}
	if c.PurgeInterval < 0 {
		errs = append(errs, errors.New("purge interval must not be negative"))
	}

	switch c.RefreshTokenBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("postgres refresh token backend requires a database DSN"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis refresh token backend requires a redis address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown refresh token backend %q", c.RefreshTokenBackend))
	}

	return errors.Join(errs...)
}

// Load builds a Config from defaults, then the JSON file named by -c/-config
// in args, then the environment, then the remaining flags in args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	cfg.resolveBackend()
	return cfg, nil
}

// LoadConfig is Load over the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
