package config

import (
	"os"
	"time"
)

// TokenEnvVar names the environment variable holding the access token.
const TokenEnvVar = "KEEPER_TOKEN"

// Config holds runtime settings for the keeper CLI.
type Config struct {
	ServerEndpointAddr string
	AccessToken        string
	RequestTimeout     time.Duration

	BreachBaseURL string
	BreachTimeout time.Duration
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 10 * time.Second
	c.BreachBaseURL = "https://api.pwnedpasswords.com"
	c.BreachTimeout = 5 * time.Second
}

// LoadConfig applies defaults, then the JSON file at path (if any), then
// $KEEPER_TOKEN. Command-line flags are bound on top by the caller.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}

	if t := os.Getenv(TokenEnvVar); t != "" {
		cfg.AccessToken = t
	}
	return cfg, nil
}
