package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"server_endpoint_addr": "vault.example:9000",
		"request_timeout":      "3s",
		"breach_timeout":       int64(2 * time.Second),
	})

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseJson(cfg, path))

	assert.Equal(t, "vault.example:9000", cfg.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.BreachTimeout)
	// absent keys keep defaults
	assert.Equal(t, "https://api.pwnedpasswords.com", cfg.BreachBaseURL)
}

func Test_parseJson_Errors(t *testing.T) {
	cfg := &Config{}

	assert.NoError(t, parseJson(cfg, ""))
	assert.Error(t, parseJson(cfg, filepath.Join(t.TempDir(), "missing.json")))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	assert.ErrorContains(t, parseJson(cfg, bad), "parse config")
}
