package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.VWO.PageSize)
	assert.Equal(t, 5, cfg.VWO.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.VWO.BatchDelay)
	assert.Equal(t, 30*time.Minute, cfg.Cache.RunningTTL)
	assert.Equal(t, []string{"ab", "multivariate", "split_url"}, cfg.VWO.Types)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	yamlBody := `
vwo:
  account_id: "111"
  batch_size: 3
  batch_delay: 500ms
cache:
  running_ttl: 10m
server:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("VWO_ACCOUNT_ID", "222")
	t.Setenv("VWOP_TYPES", "ab, split_url")
	t.Setenv("VWOP_CACHE_PAUSED_TTL", "2h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "222", cfg.VWO.AccountID, "env overrides file")
	assert.Equal(t, 3, cfg.VWO.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.VWO.BatchDelay)
	assert.Equal(t, 10*time.Minute, cfg.Cache.RunningTTL)
	assert.Equal(t, 2*time.Hour, cfg.Cache.PausedTTL)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"ab", "split_url"}, cfg.VWO.Types)
}

func TestLoad_DotEnvLocal(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"),
		[]byte("VWO_ACCOUNT_ID=894940\nVWO_API_TOKEN=secret\n"), 0o600))

	// Register cleanup for the variables godotenv is about to set.
	t.Setenv("VWO_ACCOUNT_ID", "")
	t.Setenv("VWO_API_TOKEN", "")
	os.Unsetenv("VWO_ACCOUNT_ID")
	os.Unsetenv("VWO_API_TOKEN")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "894940", cfg.VWO.AccountID)
	assert.Equal(t, "secret", cfg.VWO.APIToken)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoad_APITokenWinsOverAPIKey(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Chdir(t.TempDir())
	t.Setenv("VWO_API_TOKEN", "from-token")
	t.Setenv("VWO_API_KEY", "from-key")

	for i := 0; i < 5; i++ {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "from-token", cfg.VWO.APIToken)
	}
}

func TestLoad_APIKeyAlone(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Chdir(t.TempDir())
	t.Setenv("VWO_API_TOKEN", "")
	os.Unsetenv("VWO_API_TOKEN")
	t.Setenv("VWO_API_KEY", "from-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-key", cfg.VWO.APIToken)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.VWO.BatchSize = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Cache.DraftTTL = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Server.Port = 70000
	assert.Error(t, bad.Validate())
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	assert.True(t, errors.Is(cfg.RequireCredentials(), ErrMissingCredentials))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a,, b ,"))
	assert.Nil(t, SplitList(""))
}
