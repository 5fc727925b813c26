package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearQuizEnv(t *testing.T) {
	vars := []string{
		"PORT", "ENV", "SERVER_URL", "REDIS_URL", "DURABLE_STORE_URL",
		"DURABLE_MAX_CONNS", "DURABLE_MIN_CONNS", "JWT_SECRET", "JWT_EXPIRY_HOURS",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW_SECONDS", "LOG_LEVEL",
		"WS_WRITE_WAIT_SEC", "WS_PONG_WAIT_SEC", "WS_PING_PERIOD_SEC",
		"WS_MAX_MESSAGE_SIZE", "WS_SEND_BUFFER", "HEARTBEAT_INTERVAL_S",
		"SESSION_IDLE_TTL", "SESSION_OWNER_LEASE_TTL_SEC", "SESSION_FINALIZE_WAIT_SEC",
		"BATCH_INTERVAL_MS", "BATCH_SIZE", "MAX_RECONNECT_ATTEMPTS",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearQuizEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 3, cfg.Session.FinalizeWaitSec)
	assert.Equal(t, 50, cfg.Batch.Size)
}

func TestValidate_FailsWithoutRedisURL(t *testing.T) {
	clearQuizEnv(t)
	t.Setenv("REDIS_URL", "")
	os.Unsetenv("REDIS_URL")

	cfg := &Config{}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestLoad_RequiresJWTSecretInProduction(t *testing.T) {
	cfg := &Config{
		Redis:  RedisConfig{URL: "redis://localhost:6379/0"},
		Server: ServerConfig{Env: "production"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestGetFinalizeWait_ConvertsSecondsToDuration(t *testing.T) {
	cfg := &Config{Session: SessionConfig{FinalizeWaitSec: 3}}
	assert.Equal(t, 3*time.Second, cfg.GetFinalizeWait())
}

func TestGetSessionIdleTTL_ConvertsMinutesToDuration(t *testing.T) {
	cfg := &Config{Session: SessionConfig{IdleTTLMinutes: 30}}
	assert.Equal(t, 30*time.Minute, cfg.GetSessionIdleTTL())
}

func TestGetBatchInterval_ConvertsMillisToDuration(t *testing.T) {
	cfg := &Config{Batch: BatchConfig{IntervalMS: 200}}
	assert.Equal(t, 200*time.Millisecond, cfg.GetBatchInterval())
}
