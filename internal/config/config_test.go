package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvFile, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 1000, cfg.KoboPageSize)
	assert.True(t, cfg.InsecureDefaults())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kobodash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
kobo_url: "https://kobo.example.org/api/v2"
kobo_token: "from-file"
cors_origins: ["https://dash.example.org"]
sync_interval_minutes: 15
`), 0o600))
	t.Setenv("KOBO_API_TOKEN", "from-env")
	t.Setenv("KOBODASH_CORS_ORIGINS", "https://a.example.org, https://b.example.org")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "https://kobo.example.org/api/v2", cfg.KoboURL)
	assert.Equal(t, "from-env", cfg.KoboToken)
	assert.Equal(t, 15, cfg.SyncInterval)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.CORSOrigins)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetEnvInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("KOBO_PAGE_SIZE", "12x")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.KoboPageSize)
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.KoboURL = "not a url"
	cfg.JWTSecret = ""
	cfg.SyncConcurrency = 0
	cfg.WebhookPassHash = "plain"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"kobo_url", "jwt_secret", "sync_concurrency", "bcrypt"} {
		assert.Contains(t, err.Error(), want)
	}
}
