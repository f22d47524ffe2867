package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaultsAndRedisURL(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/booking")
	t.Setenv("REDIS_URL", "redis://svc:pw@cache:6380")
	t.Setenv("LOCK_WAIT", "500ms")
	t.Setenv("CLINIC_TZ", "America/Santiago")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "svc", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 500*time.Millisecond, cfg.LockWait)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, "America/Santiago", cfg.Location.String())
	assert.False(t, cfg.StrictGranularity)
}

func TestLoadRejectsDevSecretInProd(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/booking")
	t.Setenv("APP_ENV", EnvProd)
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestGetDuration(t *testing.T) {
	v := viper.New()
	v.Set("SECONDS", "30")
	v.Set("GO", "1m30s")
	v.Set("BAD", "soon")

	assert.Equal(t, 30*time.Second, getDuration(v, "SECONDS", time.Second))
	assert.Equal(t, 90*time.Second, getDuration(v, "GO", time.Second))
	assert.Equal(t, time.Second, getDuration(v, "BAD", time.Second))
	assert.Equal(t, time.Minute, getDuration(v, "MISSING", time.Minute))
}
