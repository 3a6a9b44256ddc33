package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/keepershare/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// Intervals may be strings like "3s" or integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	AccessToken        string         `json:"access_token"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
	BreachBaseURL      string         `json:"breach_base_url"`
	BreachTimeout      timex.Duration `json:"breach_timeout"`
}

// parseJson overlays cfg with the non-empty values of the file at path.
// An empty path loads nothing.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.BreachBaseURL != "" {
		cfg.BreachBaseURL = jc.BreachBaseURL
	}
	if jc.BreachTimeout.Duration > 0 {
		cfg.BreachTimeout = jc.BreachTimeout.Duration
	}
	return nil
}
