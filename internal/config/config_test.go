package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, 6, cfg.Auth.MinPasswordLength)
	assert.False(t, cfg.Auth.RequireEmailConfirmation)
	assert.Equal(t, "0 * * * *", cfg.Worker.ReminderSchedule)
	assert.False(t, cfg.OAuth.Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SITE_URL", "https://conecte.example/")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("BOOTSTRAP_DEV_ADMINS", "dev@hds.example")
	t.Setenv("REQUIRE_EMAIL_CONFIRMATION", "true")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://conecte.example", cfg.Server.SiteURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"dev@hds.example"}, cfg.Auth.BootstrapDevAdmins)
	assert.True(t, cfg.Auth.RequireEmailConfirmation)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.True(t, cfg.OAuth.Enabled())
	assert.Equal(t, "https://conecte.example/api/auth/oauth/google/callback", cfg.OAuth.RedirectURL)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("REFRESH_TOKEN_TTL", "forever")

	_, err := Load()
	assert.ErrorContains(t, err, "REFRESH_TOKEN_TTL")
}

func TestLoadBlankListFallsBack(t *testing.T) {
	for _, raw := range []string{" ", ",", " , ,"} {
		t.Setenv("CORS_ORIGINS", raw)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins, "CORS_ORIGINS=%q", raw)
	}
}
