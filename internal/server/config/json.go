package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either a string such as "15m" or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string          `json:"database_dsn"`
	RefreshTokenBackend          string          `json:"refresh_token_backend"`
	RedisAddr                    string          `json:"redis_addr"`
	RedisPassword                string          `json:"redis_password"`
	RedisDB                      *int            `json:"redis_db"`
	SecretKey                    string          `json:"secret_key"`
	Issuer                       string          `json:"issuer"`
	Audience                     string          `json:"audience"`
	AccessTokenValidityDuration  timex.Duration  `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration  `json:"refresh_token_validity_duration"`
	PurgeInterval                *timex.Duration `json:"purge_interval"`
	LogBackend                   string          `json:"log_backend"`
	LogLevel                     string          `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config. Fields absent
// from the file keep their current value.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RefreshTokenBackend, c.RefreshTokenBackend)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Issuer, c.Issuer)
	setString(&config.Audience, c.Audience)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.PurgeInterval != nil {
		config.PurgeInterval = c.PurgeInterval.Duration
	}
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
