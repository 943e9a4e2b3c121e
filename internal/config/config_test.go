package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PRESENCE_POLICY", "")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("NOTIFICATION_RETENTION", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []byte("secret"), cfg.JWTSecret)
	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, PresencePolicyFriends, cfg.PresencePolicy)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Contains(t, cfg.DatabaseURL, "dbname=kinfolk")
	assert.Equal(t, 90*24*time.Hour, cfg.NotificationRetention)
	assert.False(t, cfg.EmailEnabled())
}

func TestLoadPresencePolicy(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	t.Setenv("PRESENCE_POLICY", "GLOBAL")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, PresencePolicyGlobal, cfg.PresencePolicy)

	t.Setenv("PRESENCE_POLICY", "followers")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PRESENCE_POLICY", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/kin")
	t.Setenv("NOTIFY_WORKERS", "8")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SES_REGION", "us-east-1")
	t.Setenv("EMAIL_FROM", "noreply@example.com")
	t.Setenv("NOTIFICATION_RETENTION", "0s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db/kin", cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.NotifyWorkers)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.EmailEnabled())
	assert.Zero(t, cfg.NotificationRetention)
}

func TestLoadRejectsBadDurations(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PRESENCE_POLICY", "")

	t.Setenv("NOTIFICATION_RETENTION", "three months")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("NOTIFICATION_RETENTION", "")
	t.Setenv("TOKEN_TTL", "forever")
	_, err = Load()
	assert.Error(t, err)
}
