// Package config builds the immutable process configuration from the
// environment so main stays lean. Components receive the sub-structs they
// need at construction time; nothing reads the environment after startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, built once at startup.
type Config struct {
	Server     Server
	Postgres   Postgres
	Redis      Redis
	Kafka      Kafka
	RateLimit  RateLimit
	Cache      Cache
	Permission Permission
	Txn        Txn
	Audit      Audit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	JWTSigningKey     string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// Postgres captures the SQL connection settings.
type Postgres struct {
	DSN string
}

// Redis captures connection settings for the shared Redis client.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the optional audit sink brokers. Empty Brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// RateLimit configures the sliding-window limiter used by the runner.
type RateLimit struct {
	Window      time.Duration
	MaxAttempts int
}

// Cache configures the cache coordinator.
type Cache struct {
	TTL       time.Duration
	OpTimeout time.Duration
}

// Permission configures the permission gate's decision cache.
type Permission struct {
	CacheTTL time.Duration
}

// Txn configures the transactional executor.
type Txn struct {
	Timeout time.Duration
}

// Audit configures the audit trail's buffering and retention.
type Audit struct {
	RetentionDays int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	BufferSize    int
}

// FromEnv builds a Config from environment variables with sane defaults.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:              envString("WARDEN_ADDR", ":8080"),
			JWTSigningKey:     envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			ReadHeaderTimeout: envDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       envDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      envDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       envDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_AUDIT_TOPIC", "warden.audit"),
		},
		RateLimit: RateLimit{
			Window:      envDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			MaxAttempts: envInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
		},
		Cache: Cache{
			TTL:       envDuration("CACHE_TTL", 5*time.Minute),
			OpTimeout: envDuration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Permission: Permission{
			CacheTTL: envDuration("PERMISSION_CACHE_TTL", 30*time.Second),
		},
		Txn: Txn{
			Timeout: envDuration("TRANSACTION_TIMEOUT", 5*time.Second),
		},
		Audit: Audit{
			RetentionDays: envInt("AUDIT_RETENTION_DAYS", 90),
			BatchSize:     envInt("AUDIT_BATCH_SIZE", 64),
			FlushInterval: envDuration("AUDIT_FLUSH_INTERVAL", 2*time.Second),
			WriteTimeout:  envDuration("AUDIT_WRITE_TIMEOUT", 500*time.Millisecond),
			BufferSize:    envInt("AUDIT_BUFFER_SIZE", 10000),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept either a Go duration string or a bare number of seconds.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
