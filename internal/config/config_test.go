package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "captcha.yaml"), []byte(body), 0o644))
	t.Setenv("CONFIG_PATH", dir)
}

func TestLoad(t *testing.T) {
	t.Run("defaults fill missing keys", func(t *testing.T) {
		writeConfig(t, "database:\n  host: db\n")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "db", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 3*time.Minute, cfg.Captcha.ResponseDeadline)
		assert.Equal(t, 2.0, cfg.Captcha.Behavior.DefaultTemperature)
		assert.Equal(t, AbsentSignalDeny, cfg.Captcha.Behavior.AbsentSignalPolicy)
		assert.Equal(t, "@every 60s", cfg.Sweeper.Schedule)
		assert.True(t, cfg.RunsAPI())
		assert.True(t, cfg.RunsWorkers())
		assert.NotNil(t, cfg.Logger)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		writeConfig(t, "service:\n  role: all\n")
		t.Setenv("CAPTCHA_SERVICE_ROLE", RoleWorker)
		t.Setenv("LOGIT_TEMPERATURE", "3.5")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.RunsAPI())
		assert.True(t, cfg.RunsWorkers())
		assert.Equal(t, 3.5, cfg.Captcha.Behavior.DefaultTemperature)
	})

	t.Run("invalid policy", func(t *testing.T) {
		writeConfig(t, "captcha:\n  behavior:\n    absent_signal_policy: maybe\n")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "require"}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=n sslmode=require TimeZone=UTC", d.DSN())
}
