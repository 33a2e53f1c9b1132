package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  token_secret: test-secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 168, cfg.Auth.TokenLifetimeHours)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, 60, cfg.Agent.DeadlineSeconds)
	assert.Equal(t, 30, cfg.Weather.CacheTTLMinutes)
	assert.Equal(t, 15, cfg.Tools.DefaultTimeoutSeconds)
	assert.Equal(t, 30, cfg.Tools.LLM.TimeoutSeconds)
	assert.Equal(t, 10, cfg.Tools.WebSearch.TimeoutSeconds)
	assert.Equal(t, "knowledge", cfg.Tools.Knowledge.Collection)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRequiresTokenSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_secret")
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_SECRET", "from-env")

	path := writeConfig(t, `
auth:
  token_secret: ${TEST_SECRET}
weather:
  cache_ttl_minutes: ${TEST_TTL:-45}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.TokenSecret)
	assert.Equal(t, 45, cfg.Weather.CacheTTLMinutes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGROSAGE_AUTH__TOKEN_SECRET", "env-secret")
	t.Setenv("AGROSAGE_SERVER__LISTEN_ADDR", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.TokenSecret)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.Auth.TokenSecret = "s"

	cfg.Agent.MaxIterations = 1
	assert.Error(t, cfg.Validate())

	cfg.SetDefaults()
	cfg.Agent.MaxIterations = 5
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, "168h0m0s", cfg.TokenLifetime().String())
	assert.Equal(t, "30m0s", cfg.CacheTTL().String())
	assert.Equal(t, "1m0s", cfg.AgentDeadline().String())
}
