package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/taleem-platform/taleem/internal/testing/guard"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "http://localhost:8080", cfg.AppBaseURL)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.True(t, cfg.MailEnabled)
	assert.Equal(t, 1025, cfg.SMTPPort)
	assert.Empty(t, cfg.GotenbergURL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "csrf-secret")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigProductionFlag(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestInTestModeHonorsGuard(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}
