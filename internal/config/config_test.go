package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/quota")
	t.Setenv("SERVICES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, time.Hour, cfg.RateLimit.BlockTTL)
	assert.Equal(t, 500, cfg.RateLimit.Base)
	assert.Equal(t, 1500, cfg.RateLimit.Mid)
	assert.Equal(t, 10000, cfg.RateLimit.Top)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
	assert.Equal(t, time.UTC, cfg.Quota.Location)
	assert.Empty(t, cfg.Services)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/quota")
	t.Setenv("SERVICES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("RATE_LIMIT_TTL", "30")
	t.Setenv("RATE_LIMIT_BLOCK_TTL", "600")
	t.Setenv("RATE_LIMIT_BASE", "10")
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("QUOTA_RESET_AT", "03:30")
	t.Setenv("ADMIN_EMAILS", "ops@example.com, , root@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.BlockTTL)
	assert.Equal(t, 10, cfg.RateLimit.Base)
	assert.Equal(t, "Europe/Berlin", cfg.Quota.Location.String())
	assert.Equal(t, "03:30", cfg.Quota.ResetAt)
	assert.Equal(t, []string{"ops@example.com", "root@example.com"}, cfg.Auth.AdminEmails)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVICES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_ServicesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	content := []byte(`services:
  - name: weather
    target: http://localhost:3001
    feature: basic
  - name: insights
    target: http://localhost:3002
    feature: premium
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("DATABASE_URL", "postgres://localhost/quota")
	t.Setenv("SERVICES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Services, 2)
	assert.Equal(t, "weather", cfg.Services[0].Name)
	assert.Equal(t, "premium", cfg.Services[1].Feature)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database:  DatabaseConfig{URL: "postgres://x"},
			RateLimit: RateLimitConfig{Window: time.Minute, BlockTTL: time.Hour, Base: 1, Mid: 2, Top: 3},
			Quota:     QuotaConfig{Timezone: "UTC", ResetAt: "00:00", ResetConcurrency: 1},
		}
	}

	cfg := base()
	cfg.Quota.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Quota.ResetAt = "25:00"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.RateLimit.Mid = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.Environment = "production"
	assert.Error(t, cfg.Validate(), "production needs a JWT secret")

	cfg = base()
	assert.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:05")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	_, _, err = ParseClock("7")
	assert.Error(t, err)
}
