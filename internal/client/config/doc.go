// Package config loads runtime configuration for the tokenkeeper CLI.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags.
//
// Flags:
//
//	-a string   address:port of the backend gRPC endpoint
//	-t duration request timeout
//
// JSON:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "5s"
//	}
package config
