package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8081\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Queue.DefaultServiceMinutes)
	assert.Equal(t, 10, cfg.Queue.DynamicSampleSize)
	assert.True(t, cfg.Queue.AdvanceOnAdmission)
	assert.Equal(t, 10*time.Minute, cfg.Reminder.WindowStart)
	assert.Equal(t, 25*time.Minute, cfg.Reminder.WindowEnd)
	assert.Equal(t, "queue_updates", cfg.Realtime.Channel)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8081\nqueue:\n  timezone: UTC\n")
	t.Setenv("QUEUE_SERVER_PORT", "9000")
	t.Setenv("QUEUE_DATABASE_URL", "postgres://queue@db/queue")
	t.Setenv("QUEUE_QUEUE_ADVANCE_ON_ADMISSION", "false")
	t.Setenv("QUEUE_RATE_LIMIT_BURST", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres://queue@db/queue", cfg.Database.DSN())
	assert.False(t, cfg.Queue.AdvanceOnAdmission)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, "queue:\n  timezone: Not/AZone\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "q", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=q sslmode=disable", cfg.DSN())
}
