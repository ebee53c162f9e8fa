package config

import (
	"errors"
	"os"
	"time"
)

// Config holds runtime settings for the tokenkeeper CLI.
type Config struct {
	ServerEndpointAddr string
	RequestTimeout     time.Duration
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 5 * time.Second
}

func (c *Config) Validate() error {
	var errs []error
	if c.ServerEndpointAddr == "" {
		errs = append(errs, errors.New("server endpoint address is empty"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Load applies defaults, then the JSON file, then flags from args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
