// Package config loads server configuration.
//
// Priority (highest to lowest):
//  1. Command-line flags (applied by cmd/server)
//  2. Environment variables with LEAVE_ prefix (e.g. LEAVE_HTTP_PORT),
//     including those read from a .env file
//  3. The YAML config file, when present
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Lock      LockConfig
	Calendar  CalendarConfig
	Lifecycle LifecycleConfig
	Demo      DemoConfig
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds the SQLite location. ":memory:" is allowed.
type DatabaseConfig struct {
	Path string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// LockConfig selects the key locker backend.
type LockConfig struct {
	Backend string // memory or redis
	Redis   RedisConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CalendarConfig controls working-day counting.
type CalendarConfig struct {
	// Holidays makes the calendar skip days from the holidays table.
	Holidays  bool
	CompanyID string
}

// LifecycleConfig tunes the leave request workflow.
type LifecycleConfig struct {
	// ReconcileOnApprove recomputes the balance after every approval.
	ReconcileOnApprove bool
}

// DemoConfig enables development-only features.
type DemoConfig struct {
	// Scenarios mounts /api/scenarios, which wipes the database on load.
	Scenarios bool
}

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Load reads configuration. path names an explicit config file; when it is
// empty, leave-ledger.yaml is looked up in the working directory and its
// absence is not an error.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("leave-ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		HTTP: HTTPConfig{
			Port:            v.GetString("http.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			CORSOrigins:     v.GetStringSlice("http.cors_origins"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Scheduler: SchedulerConfig{
			Enabled:  v.GetBool("scheduler.enabled"),
			Interval: v.GetDuration("scheduler.interval"),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(v.GetString("lock.backend")),
			Redis: RedisConfig{
				Addr:     v.GetString("lock.redis.addr"),
				Password: v.GetString("lock.redis.password"),
				DB:       v.GetInt("lock.redis.db"),
			},
		},
		Calendar: CalendarConfig{
			Holidays:  v.GetBool("calendar.holidays"),
			CompanyID: v.GetString("calendar.company_id"),
		},
		Lifecycle: LifecycleConfig{
			ReconcileOnApprove: v.GetBool("lifecycle.reconcile_on_approve"),
		},
		Demo: DemoConfig{
			Scenarios: v.GetBool("demo.scenarios"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("database.path", "leave.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("lock.backend", LockBackendMemory)
	v.SetDefault("lock.redis.addr", "localhost:6379")
	v.SetDefault("lock.redis.db", 0)
	v.SetDefault("calendar.holidays", false)
	v.SetDefault("lifecycle.reconcile_on_approve", true)
	v.SetDefault("demo.scenarios", false)
}

func (c *Config) validate() error {
	if c.HTTP.Port == "" {
		return fmt.Errorf("http.port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	switch c.Lock.Backend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Lock.Redis.Addr == "" {
			return fmt.Errorf("lock.redis.addr is required when lock.backend is redis")
		}
	default:
		return fmt.Errorf("lock.backend must be %q or %q, got %q", LockBackendMemory, LockBackendRedis, c.Lock.Backend)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
