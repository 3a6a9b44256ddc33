package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, StorageMemory, c.Storage)
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 24*time.Hour, c.BreachCacheTTL)
	assert.Equal(t, 100, c.LinkMaxViews)
	assert.Equal(t, "vault", c.S3Bucket)
	require.NoError(t, c.Validate())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	t.Setenv("KEEPER_CONFIG", "")

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want, *c)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage = "redis" }},
		{"no secret key", func(c *Config) { c.SecretKey = "" }},
		{"no master password", func(c *Config) { c.MasterPassword = "" }},
		{"no views", func(c *Config) { c.LinkMaxViews = 0 }},
		{"default ttl above max", func(c *Config) { c.LinkDefaultTTL = 2 * c.LinkMaxTTL }},
		{"bad trusted proxy", func(c *Config) { c.HTTPTrustedProxies = []string{"10.0.0.0/8", "proxy.local"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	var c Config
	c.LoadDefaults()
	c.HTTPTrustedProxies = []string{"10.0.0.0/8", "127.0.0.1", "::1"}
	assert.NoError(t, c.Validate())
}
