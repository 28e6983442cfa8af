package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider             string        `yaml:"provider"`
		BaseURL              string        `yaml:"base_url"`
		APIKey               string        `yaml:"api_key"`
		LookbackDays         int           `yaml:"lookback_days"`
		ExtendedLookbackDays int           `yaml:"extended_lookback_days"`
		WindowDays           int           `yaml:"window_days"`
		FetchTimeout         time.Duration `yaml:"fetch_timeout"`
		MaxConcurrency       int           `yaml:"max_concurrency"`
		RatePerSecond        float64       `yaml:"rate_per_second"`
	} `yaml:"data_source"`
	Schedule struct {
		Cycle              time.Duration `yaml:"cycle"`
		WeeklyRolloverCron string        `yaml:"weekly_rollover_cron"`
		PlanReminderCron   string        `yaml:"plan_reminder_cron"`
	} `yaml:"schedule"`
	Alerts struct {
		BuyCooldown        time.Duration `yaml:"buy_cooldown"`
		TakeProfitCooldown time.Duration `yaml:"take_profit_cooldown"`
		StopLossCooldown   time.Duration `yaml:"stop_loss_cooldown"`
		EscalationMargin   float64       `yaml:"escalation_margin"`
	} `yaml:"alerts"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Metrics struct {
		Port int `yaml:"port"`
	} `yaml:"metrics"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Lang            string  `yaml:"lang"`
	PremiumAccounts []int64 `yaml:"premium_accounts"`
	Proxy           string  `yaml:"proxy"`
}

// Load reads .env, then the YAML file, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not read .env file")
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read config")
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"TELEGRAM_BOT_TOKEN":   &c.Telegram.BotToken,
		"DATA_PROVIDER":        &c.DataSource.Provider,
		"DATA_BASE_URL":        &c.DataSource.BaseURL,
		"DATA_API_KEY":         &c.DataSource.APIKey,
		"CRON_WEEKLY_ROLLOVER": &c.Schedule.WeeklyRolloverCron,
		"CRON_PLAN_REMINDER":   &c.Schedule.PlanReminderCron,
		"DB_DRIVER":            &c.Database.Driver,
		"SQLITE_PATH":          &c.Database.SQLitePath,
		"DATABASE_URL":         &c.Database.PostgresDSN,
		"LOG_LEVEL":            &c.Log.Level,
		"LANG_CODE":            &c.Lang,
		"HTTPS_PROXY":          &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"CYCLE_INTERVAL": &c.Schedule.Cycle,
		"FETCH_TIMEOUT":  &c.DataSource.FetchTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "parse %s", key)
			}
			*dst = d
		}
	}

	if v := os.Getenv("METRICS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parse METRICS_PORT")
		}
		c.Metrics.Port = port
	}
	if v := os.Getenv("PREMIUM_ACCOUNTS"); v != "" {
		c.PremiumAccounts = c.PremiumAccounts[:0]
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "parse PREMIUM_ACCOUNTS entry %q", part)
			}
			c.PremiumAccounts = append(c.PremiumAccounts, id)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.WindowDays == 0 {
		c.DataSource.WindowDays = 60
	}
	if c.DataSource.LookbackDays == 0 {
		c.DataSource.LookbackDays = c.DataSource.WindowDays
	}
	if c.DataSource.ExtendedLookbackDays == 0 {
		c.DataSource.ExtendedLookbackDays = 220
	}
	if c.DataSource.FetchTimeout == 0 {
		c.DataSource.FetchTimeout = 20 * time.Second
	}
	if c.DataSource.MaxConcurrency == 0 {
		c.DataSource.MaxConcurrency = 8
	}
	if c.Schedule.Cycle == 0 {
		c.Schedule.Cycle = 5 * time.Minute
	}
	if c.Schedule.WeeklyRolloverCron == "" {
		c.Schedule.WeeklyRolloverCron = "0 0 0 * * 1"
	}
	if c.Schedule.PlanReminderCron == "" {
		c.Schedule.PlanReminderCron = "0 0 8 * * 1"
	}
	if c.Alerts.BuyCooldown == 0 {
		c.Alerts.BuyCooldown = 6 * time.Hour
	}
	if c.Alerts.TakeProfitCooldown == 0 {
		c.Alerts.TakeProfitCooldown = 3 * time.Hour
	}
	if c.Alerts.StopLossCooldown == 0 {
		c.Alerts.StopLossCooldown = 3 * time.Hour
	}
	if c.Alerts.EscalationMargin == 0 {
		c.Alerts.EscalationMargin = 2.0
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/dipsentinel.db"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	switch c.DataSource.Provider {
	case "yahoo", "coinpaprika", "mock":
	case "vstrader":
		if c.DataSource.BaseURL == "" {
			return errors.New("data_source.base_url is required for the vstrader provider")
		}
	default:
		return errors.Errorf("unknown data_source.provider %q", c.DataSource.Provider)
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return errors.New("database.postgres_dsn is required for the postgres driver")
		}
	default:
		return errors.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.DataSource.WindowDays <= 0 {
		return errors.New("data_source.window_days must be positive")
	}
	if c.DataSource.LookbackDays < c.DataSource.WindowDays {
		return errors.New("data_source.lookback_days must cover window_days")
	}
	if c.DataSource.FetchTimeout < 0 || c.Schedule.Cycle < 0 {
		return errors.New("durations must not be negative")
	}
	if c.DataSource.RatePerSecond < 0 {
		return errors.New("data_source.rate_per_second must not be negative")
	}
	if c.Alerts.EscalationMargin < 2 {
		return errors.New("alerts.escalation_margin must be at least 2")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}
