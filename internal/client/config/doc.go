// Package config loads runtime configuration for the keeper CLI.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file passed with --config or $KEEPER_CONFIG.
//  3. $KEEPER_TOKEN for the access token.
//  4. Command-line flags bound by the cli package.
//
// JSON example:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "10s",
//	  "breach_base_url": "https://api.pwnedpasswords.com"
//	}
package config
