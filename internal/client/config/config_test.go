package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c := &Config{}
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
	assert.Equal(t, "https://api.pwnedpasswords.com", c.BreachBaseURL)
	assert.Empty(t, c.AccessToken)
}

func TestLoadConfig_TokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnvVar, "tok")

	c, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "tok", c.AccessToken)
	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{"access_token": "from-file"})
	t.Setenv(TokenEnvVar, "from-env")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.AccessToken)
}
