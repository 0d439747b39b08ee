package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "leave.db", cfg.Database.Path)
	assert.Equal(t, config.LockBackendMemory, cfg.Lock.Backend)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.True(t, cfg.Lifecycle.ReconcileOnApprove)
	assert.False(t, cfg.Calendar.Holidays)
	assert.False(t, cfg.Demo.Scenarios)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LEAVE_HTTP_PORT", "9090")
	t.Setenv("LEAVE_DATABASE_PATH", ":memory:")
	t.Setenv("LEAVE_SCHEDULER_INTERVAL", "5m")
	t.Setenv("LEAVE_LIFECYCLE_RECONCILE_ON_APPROVE", "false")
	t.Setenv("LEAVE_DEMO_SCENARIOS", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.False(t, cfg.Lifecycle.ReconcileOnApprove)
	assert.True(t, cfg.Demo.Scenarios)
}

func TestLoad_File(t *testing.T) {
	// GIVEN: A YAML file selecting the redis lock backend
	path := filepath.Join(t.TempDir(), "leave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: "7070"
lock:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
calendar:
  holidays: true
  company_id: acme
`), 0o600))

	// WHEN: It is loaded, with one value overridden from the environment
	t.Setenv("LEAVE_LOCK_REDIS_DB", "3")
	cfg, err := config.Load(path)

	// THEN: File values win over defaults and env wins over the file
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.HTTP.Port)
	assert.Equal(t, config.LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, "redis:6379", cfg.Lock.Redis.Addr)
	assert.Equal(t, 3, cfg.Lock.Redis.DB)
	assert.True(t, cfg.Calendar.Holidays)
	assert.Equal(t, "acme", cfg.Calendar.CompanyID)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown lock backend", map[string]string{"LEAVE_LOCK_BACKEND": "etcd"}, "lock.backend"},
		{"bad log format", map[string]string{"LEAVE_LOG_FORMAT": "xml"}, "log.format"},
		{"zero interval", map[string]string{"LEAVE_SCHEDULER_INTERVAL": "0s"}, "scheduler.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load("")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
