package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name        string
		args        []string
		expectPanic bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:9090", "-l", ":9091", "-k", "postgres", "-d", "db", "-s", "secret",
				"-t", "2", "-m", "master", "-u", "user", "-p", "password", "-b", "bucket",
				"-g", "us-west-1", "-e", "http://endpoint", "-x", "http://range", "-v", "debug",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "127.0.0.1:9090", c.EndpointAddrGRPC)
				assert.Equal(t, ":9091", c.EndpointAddrHTTP)
				assert.Equal(t, StoragePostgres, c.Storage)
				assert.Equal(t, "db", c.DatabaseDSN)
				assert.Equal(t, "secret", c.SecretKey)
				assert.Equal(t, 2*time.Minute, c.AccessTokenValidityDuration)
				assert.Equal(t, "master", c.MasterPassword)
				assert.Equal(t, "user", c.S3RootUser)
				assert.Equal(t, "password", c.S3RootPassword)
				assert.Equal(t, "bucket", c.S3Bucket)
				assert.Equal(t, "us-west-1", c.S3Region)
				assert.Equal(t, "http://endpoint", c.S3BaseEndpoint)
				assert.Equal(t, "http://range", c.BreachBaseURL)
				assert.Equal(t, "debug", c.LogLevel)
			},
		},
		{
			name: "unknown flags are ignored",
			args: []string{"cmd", "-z", "1", "-a", ":1"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, ":1", c.EndpointAddrGRPC)
			},
		},
		{
			name:        "bad int panics",
			args:        []string{"cmd", "-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}
			config.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			tt.check(t, config)
		})
	}
}
