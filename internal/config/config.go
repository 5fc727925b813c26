// Package config loads typed configuration for the session-runtime core from
// the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Durable   DurableConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	WebSocket WebSocketConfig
	Session   SessionConfig
	Batch     BatchConfig
	Reconnect ReconnectConfig
}

type ServerConfig struct {
	Port string
	Env  string
	URL  string
}

type RedisConfig struct {
	URL string
}

// DurableConfig is the post-quiz analytics sink (answers, for reporting).
type DurableConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type LogConfig struct {
	Level string
}

// WebSocketConfig governs the Connection Registry's per-connection pumps.
type WebSocketConfig struct {
	WriteWaitSeconds  int
	PongWaitSeconds   int
	PingPeriodSeconds int
	MaxMessageSize    int64
	SendBufferSize    int
	HeartbeatInterval int // HEARTBEAT_INTERVAL_S
}

// SessionConfig governs eviction and ownership lease lifetimes.
type SessionConfig struct {
	IdleTTLMinutes   int
	OwnerLeaseTTLSec int
	FinalizeWaitSec  int
}

// BatchConfig governs the Answer Pipeline's write-back accumulator (§4.E).
type BatchConfig struct {
	IntervalMS int
	Size       int
}

// ReconnectConfig mirrors the client reconnection manager's schedule (§4.H).
// It is loaded from the environment only; the join response does not
// include it.
type ReconnectConfig struct {
	MaxAttempts int
}

// Load reads configuration from environment variables, loading a local .env
// file first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
			URL:  getEnv("SERVER_URL", "http://localhost:8080"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Durable: DurableConfig{
			URL:      getEnv("DURABLE_STORE_URL", ""),
			MaxConns: getEnvAsInt("DURABLE_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DURABLE_MIN_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 12),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		WebSocket: WebSocketConfig{
			WriteWaitSeconds:  getEnvAsInt("WS_WRITE_WAIT_SEC", 10),
			PongWaitSeconds:   getEnvAsInt("WS_PONG_WAIT_SEC", 60),
			PingPeriodSeconds: getEnvAsInt("WS_PING_PERIOD_SEC", 54),
			MaxMessageSize:    getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 64*1024),
			SendBufferSize:    getEnvAsInt("WS_SEND_BUFFER", 256),
			HeartbeatInterval: getEnvAsInt("HEARTBEAT_INTERVAL_S", 20),
		},
		Session: SessionConfig{
			IdleTTLMinutes:   getEnvAsInt("SESSION_IDLE_TTL", 30),
			OwnerLeaseTTLSec: getEnvAsInt("SESSION_OWNER_LEASE_TTL_SEC", 5),
			FinalizeWaitSec:  getEnvAsInt("SESSION_FINALIZE_WAIT_SEC", 3),
		},
		Batch: BatchConfig{
			IntervalMS: getEnvAsInt("BATCH_INTERVAL_MS", 200),
			Size:       getEnvAsInt("BATCH_SIZE", 50),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.JWT.Secret == "" && c.Server.Env == "production" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func (c *Config) GetJWTExpiry() time.Duration {
	return time.Duration(c.JWT.ExpiryHours) * time.Hour
}

func (c *Config) GetWebSocketWriteWait() time.Duration {
	return time.Duration(c.WebSocket.WriteWaitSeconds) * time.Second
}

func (c *Config) GetWebSocketPongWait() time.Duration {
	return time.Duration(c.WebSocket.PongWaitSeconds) * time.Second
}

func (c *Config) GetWebSocketPingPeriod() time.Duration {
	return time.Duration(c.WebSocket.PingPeriodSeconds) * time.Second
}

func (c *Config) GetSessionIdleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLMinutes) * time.Minute
}

func (c *Config) GetOwnerLeaseTTL() time.Duration {
	return time.Duration(c.Session.OwnerLeaseTTLSec) * time.Second
}

func (c *Config) GetFinalizeWait() time.Duration {
	return time.Duration(c.Session.FinalizeWaitSec) * time.Second
}

func (c *Config) GetBatchInterval() time.Duration {
	return time.Duration(c.Batch.IntervalMS) * time.Millisecond
}
