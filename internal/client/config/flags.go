package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// parseFlags overlays values from command-line flags.
//
//	-a string   address:port of the server
//	-t duration per-request timeout, e.g. 5s
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-t"})

	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")

	return fs.Parse(args)
}
