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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "yahoo", cfg.DataSource.Provider)
	assert.Equal(t, 60, cfg.DataSource.WindowDays)
	assert.Equal(t, 20*time.Second, cfg.DataSource.FetchTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.Cycle)
	assert.Equal(t, 6*time.Hour, cfg.Alerts.BuyCooldown)
	assert.Equal(t, 3*time.Hour, cfg.Alerts.StopLossCooldown)
	assert.Equal(t, 2.0, cfg.Alerts.EscalationMargin)
	assert.Equal(t, "0 0 0 * * 1", cfg.Schedule.WeeklyRolloverCron)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
data_source:
  provider: coinpaprika
  fetch_timeout: 5s
  max_concurrency: 2
schedule:
  cycle: 1m
alerts:
  buy_cooldown: 2h
premium_accounts: [11, 12]
`)
	t.Setenv("CYCLE_INTERVAL", "30s")
	t.Setenv("TELEGRAM_BOT_TOKEN", "abc")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "coinpaprika", cfg.DataSource.Provider)
	assert.Equal(t, 5*time.Second, cfg.DataSource.FetchTimeout)
	assert.Equal(t, 2, cfg.DataSource.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Schedule.Cycle)
	assert.Equal(t, 2*time.Hour, cfg.Alerts.BuyCooldown)
	assert.Equal(t, "abc", cfg.Telegram.BotToken)
	assert.Equal(t, []int64{11, 12}, cfg.PremiumAccounts)
}

func TestPremiumAccountsFromEnv(t *testing.T) {
	t.Setenv("PREMIUM_ACCOUNTS", "1, 2,3")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, cfg.PremiumAccounts)

	t.Setenv("PREMIUM_ACCOUNTS", "x")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown provider", "data_source:\n  provider: nasdaq\n"},
		{"vstrader without url", "data_source:\n  provider: vstrader\n"},
		{"postgres without dsn", "database:\n  driver: postgres\n"},
		{"lookback shorter than window", "data_source:\n  lookback_days: 30\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"escalation margin below two points", "alerts:\n  escalation_margin: 1.5\n"},
		{"negative escalation margin", "alerts:\n  escalation_margin: -3\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.body))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsWiderEscalationMargin(t *testing.T) {
	cfg, err := Load(writeConfig(t, "alerts:\n  escalation_margin: 3.5\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3.5, cfg.Alerts.EscalationMargin)
}
