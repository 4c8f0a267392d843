package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("SESSION_BASE_URL", "")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleCheckInterval)
	assert.Equal(t, 2*time.Second, cfg.ActivityThrottle)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "http://localhost:8431/api/auth/login", cfg.LoginURL())
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("SESSION_BASE_URL", "https://erp.example.com/api/")
	t.Setenv("SESSION_IDLE_TIMEOUT", "15m")
	t.Setenv("SESSION_MAX_RETRIES", "1")
	t.Setenv("SESSION_TAB_ID", "tab-1")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://erp.example.com/api", cfg.BaseURL)
	assert.Equal(t, 15*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, "tab-1", cfg.TabID)
	assert.Equal(t, "https://erp.example.com/api/auth/me", cfg.ProfileURL())
}

func TestConfigFromEnv_BadValues(t *testing.T) {
	t.Setenv("SESSION_IDLE_TIMEOUT", "forever")
	_, err := ConfigFromEnv()
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.BaseURL = "not a url"
	cfg.LoginRoute = "login"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "BaseURL")
	assert.Contains(t, err.Error(), "LoginRoute")
}

func TestConfigFromEnv_ZeroSafetyMarginRejected(t *testing.T) {
	t.Setenv("SESSION_SAFETY_MARGIN", "0s")
	_, err := ConfigFromEnv()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "SafetyMargin")

	t.Setenv("SESSION_SAFETY_MARGIN", "5s")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.SafetyMargin)
}
