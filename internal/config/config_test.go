package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FIDELGATE_ENCRYPTION_KEY", testKeyHex)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.HardenedHashing)
	assert.Equal(t, 500, cfg.EventCap)
	assert.Equal(t, BackendBBolt, cfg.Store.Backend)
	assert.Equal(t, 8443, cfg.HTTP.Port)
}

func TestLoad_RequiresKey(t *testing.T) {
	t.Setenv("FIDELGATE_ENCRYPTION_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsShortKey(t *testing.T) {
	t.Setenv("FIDELGATE_ENCRYPTION_KEY", "abcd1234")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "32 bytes"))
}

func TestLoad_RejectsNonHexKey(t *testing.T) {
	t.Setenv("FIDELGATE_ENCRYPTION_KEY", strings.Repeat("zz", 32))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FIDELGATE_ENCRYPTION_KEY", testKeyHex)
	t.Setenv("FIDELGATE_SESSION_TTL", "15m")
	t.Setenv("FIDELGATE_STORE_BACKEND", "redis")
	t.Setenv("FIDELGATE_STORE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("FIDELGATE_HTTP_PORT", "9000")
	t.Setenv("FIDELGATE_ADMIN_EMAIL", "owner@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6380", cfg.Store.RedisAddr)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "owner@example.com", cfg.Admin.Email)
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("FIDELGATE_ENCRYPTION_KEY", testKeyHex)
	t.Setenv("FIDELGATE_STORE_BACKEND", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}

func TestSanitize_Guardrails(t *testing.T) {
	cfg := &Config{}
	cfg.HTTP.Port = -1
	cfg.SessionTTL = -time.Minute
	cfg.EventCap = 0

	cfg.Sanitize()

	assert.Equal(t, 8443, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 500, cfg.EventCap)
}
