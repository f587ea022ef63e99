package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcneil/storefront/internal/config"
	"github.com/dmcneil/storefront/internal/models"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", "a-perfectly-adequate-dev-secret")
	t.Setenv("DB_PASSWORD", "postgres")
}

func TestLoad_MissingSigningSecretIsFatal(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", "")
	t.Setenv("DB_PASSWORD", "postgres")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_SIGNING_SECRET")
}

func TestLoad_ShortSigningSecretRejected(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", "tooshort")
	t.Setenv("DB_PASSWORD", "postgres")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 characters")
}

func TestLoad_ProductionRequiresLongerSecret(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", "sixteen-chars-ok")
	t.Setenv("DB_PASSWORD", "postgres")
	t.Setenv("ENV", "production")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_WeakSecretRejected(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", "changeme")
	t.Setenv("DB_PASSWORD", "postgres")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 30*24*time.Hour, cfg.Auth.CustomerSessionTTL)
	assert.Equal(t, 8*time.Hour, cfg.Auth.StaffSessionTTL)
	assert.Equal(t, models.SessionPolicyInvalidate, cfg.Auth.StaffSessionPolicy)
	assert.Equal(t, 6, cfg.OTP.CodeLength)
	assert.Equal(t, 120*time.Second, cfg.OTP.Cooldown)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.OTP.LockoutDuration)
	assert.Equal(t, 1*time.Hour, cfg.RateLimit.RetentionHorizon)
}

func TestLoad_SessionPolicyReject(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STAFF_SESSION_POLICY", "reject")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, models.SessionPolicyReject, cfg.Auth.StaffSessionPolicy)
}

func TestLoad_InvalidSessionPolicyRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STAFF_SESSION_POLICY", "merge")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STAFF_SESSION_POLICY")
}

func TestLoad_TOTPKeyLengthEnforced(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOTP_ENCRYPTION_KEY", "short")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}
