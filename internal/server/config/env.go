package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment when one
// exists. Variables already set are not overridden.
func LoadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// parseEnv overlays values from the environment.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	str("GRPC_ADDRESS", &config.EndpointAddrGRPC)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("REFRESH_TOKEN_BACKEND", &config.RefreshTokenBackend)
	str("REDIS_ADDR", &config.RedisAddr)
	str("REDIS_PASSWORD", &config.RedisPassword)
	str("JWT_KEY", &config.SecretKey)
	str("JWT_ISSUER", &config.Issuer)
	str("JWT_AUDIENCE", &config.Audience)
	str("LOG_BACKEND", &config.LogBackend)
	str("LOG_LEVEL", &config.LogLevel)

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		config.RedisDB = n
	}

	seconds := []struct {
		name string
		dst  *time.Duration
	}{
		{"JWT_ACCESS_TOKEN_EXPIRATION_SECONDS", &config.AccessTokenValidityDuration},
		{"JWT_REFRESH_TOKEN_EXPIRATION_SECONDS", &config.RefreshTokenValidityDuration},
		{"PURGE_INTERVAL_SECONDS", &config.PurgeInterval},
	}
	for _, s := range seconds {
		v, ok := lookup(s.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		*s.dst = time.Duration(n) * time.Second
	}

	return nil
}
