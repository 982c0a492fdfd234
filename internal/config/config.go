// Package config loads Tascade's configuration surface (spec.md section 6)
// from environment variables and an optional .env file, ported from the
// teacher's pkg/config environment-aware loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tascade-run/tascade/pkg/logger"
)

// ServerConfig controls the demo HTTP transport (cmd/tascade-server).
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig controls persistence. An empty DSN selects the in-memory
// store (the non-Postgres runtime backend), matching the teacher's
// appserver "in-memory storage when empty" behavior.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
	MigrationsPath  string
}

// SchedulerConfig carries the scheduler defaults from spec.md section 6:
// default hard-reservation TTL, default lease TTL, and the heartbeat
// extension window.
type SchedulerConfig struct {
	DefaultReservationTTL time.Duration
	DefaultLeaseTTL        time.Duration
	HeartbeatWindow        time.Duration
}

// ContextConfig carries the bounded-context depth caps and defaults from
// spec.md sections 4.2/6.
type ContextConfig struct {
	MaxAncestorDepth      int
	MaxDependentDepth     int
	DefaultAncestorDepth  int
	DefaultDependentDepth int
	CacheGCInterval       time.Duration
	CacheMaxAge           time.Duration
}

// GateConfig carries per-project gate rule thresholds applied when no
// project-specific override has been configured via CreateRule.
type GateConfig struct {
	TickInterval          time.Duration
	DefaultEvidenceWindow time.Duration
}

// AuthConfig controls the (external) transport's authentication. Per
// spec.md section 6, an auth-disabled flag exists strictly for tests.
type AuthConfig struct {
	Disabled  bool // test only
	JWTSecret string
}

// Config is the top-level configuration surface for the core and its demo
// transport.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   logger.LoggingConfig
	Scheduler SchedulerConfig
	Context   ContextConfig
	Gate      GateConfig
	Auth      AuthConfig
}

// New returns a Config populated with the defaults from spec.md section 6.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrateOnStart:  true,
			MigrationsPath:  "internal/platform/migrations",
		},
		Logging: logger.LoggingConfig{Level: "info", Format: "text", Output: "stdout", FilePrefix: "tascade"},
		Scheduler: SchedulerConfig{
			DefaultReservationTTL: 30 * time.Minute,
			DefaultLeaseTTL:       10 * time.Minute,
			HeartbeatWindow:       10 * time.Minute,
		},
		Context: ContextConfig{
			MaxAncestorDepth:      5,
			MaxDependentDepth:     5,
			DefaultAncestorDepth:  2,
			DefaultDependentDepth: 1,
			CacheGCInterval:       5 * time.Minute,
			CacheMaxAge:           15 * time.Minute,
		},
		Gate: GateConfig{
			TickInterval:          time.Minute,
			DefaultEvidenceWindow: 72 * time.Hour,
		},
		Auth: AuthConfig{},
	}
}

// Load builds a Config from defaults, an optional .env file, and
// environment variable overrides, mirroring the teacher's config.Load.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := New()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load tascade config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.Server.Host = getEnv("TASCADE_SERVER_HOST", c.Server.Host)
	port, err := getIntEnv("TASCADE_SERVER_PORT", c.Server.Port)
	if err != nil {
		return err
	}
	c.Server.Port = port

	c.Database.DSN = getEnv("TASCADE_DATABASE_DSN", c.Database.DSN)
	c.Database.MigrationsPath = getEnv("TASCADE_MIGRATIONS_PATH", c.Database.MigrationsPath)
	if maxOpen, err := getIntEnv("TASCADE_DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns); err != nil {
		return err
	} else {
		c.Database.MaxOpenConns = maxOpen
	}
	if maxIdle, err := getIntEnv("TASCADE_DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns); err != nil {
		return err
	} else {
		c.Database.MaxIdleConns = maxIdle
	}
	migrateOnStart, err := getBoolEnv("TASCADE_DATABASE_MIGRATE_ON_START", c.Database.MigrateOnStart)
	if err != nil {
		return err
	}
	c.Database.MigrateOnStart = migrateOnStart

	c.Logging.Level = getEnv("TASCADE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("TASCADE_LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("TASCADE_LOG_OUTPUT", c.Logging.Output)

	if d, err := getDurationEnv("TASCADE_SCHEDULER_DEFAULT_RESERVATION_TTL", c.Scheduler.DefaultReservationTTL); err != nil {
		return err
	} else {
		c.Scheduler.DefaultReservationTTL = clampReservationTTL(d)
	}
	if d, err := getDurationEnv("TASCADE_SCHEDULER_DEFAULT_LEASE_TTL", c.Scheduler.DefaultLeaseTTL); err != nil {
		return err
	} else {
		c.Scheduler.DefaultLeaseTTL = d
	}
	if d, err := getDurationEnv("TASCADE_SCHEDULER_HEARTBEAT_WINDOW", c.Scheduler.HeartbeatWindow); err != nil {
		return err
	} else {
		c.Scheduler.HeartbeatWindow = d
	}

	if d, err := getDurationEnv("TASCADE_GATE_TICK_INTERVAL", c.Gate.TickInterval); err != nil {
		return err
	} else {
		c.Gate.TickInterval = d
	}
	if d, err := getDurationEnv("TASCADE_GATE_DEFAULT_EVIDENCE_WINDOW", c.Gate.DefaultEvidenceWindow); err != nil {
		return err
	} else {
		c.Gate.DefaultEvidenceWindow = d
	}

	authDisabled, err := getBoolEnv("TASCADE_AUTH_DISABLED", c.Auth.Disabled)
	if err != nil {
		return err
	}
	c.Auth.Disabled = authDisabled
	c.Auth.JWTSecret = getEnv("TASCADE_AUTH_JWT_SECRET", c.Auth.JWTSecret)

	return nil
}

// clampReservationTTL enforces the [60s, 86400s] bound from spec.md
// section 3's Reservation invariant on the configured default.
func clampReservationTTL(d time.Duration) time.Duration {
	if d < 60*time.Second {
		return 60 * time.Second
	}
	if d > 86400*time.Second {
		return 86400 * time.Second
	}
	return d
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
