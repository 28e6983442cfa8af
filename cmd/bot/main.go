package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/budget"
	"DipSentinel/internal/collector"
	"DipSentinel/internal/config"
	"DipSentinel/internal/cooldown"
	"DipSentinel/internal/lock"
	"DipSentinel/internal/metrics"
	"DipSentinel/internal/model"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/scheduler"
	"DipSentinel/internal/service"
	"DipSentinel/internal/store"
	"DipSentinel/internal/strategy"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Info("DipSentinel starting...")

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("config validation")
	}
	level, _ := log.ParseLevel(cfg.Log.Level)
	log.SetLevel(level)

	notifier.Configure("locales", cfg.Lang)
	log.WithField("lang", notifier.Language()).Debug("translations loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init store")
	}
	defer st.Close()

	fetcher := newFetcher(cfg)
	log.WithField("provider", fetcher.Name()).Info("data source ready")
	col := collector.NewCollector(fetcher, collector.Options{
		Window:           cfg.DataSource.WindowDays,
		Lookback:         cfg.DataSource.LookbackDays,
		ExtendedLookback: cfg.DataSource.ExtendedLookbackDays,
		FetchTimeout:     cfg.DataSource.FetchTimeout,
		MaxConcurrency:   cfg.DataSource.MaxConcurrency,
		RatePerSecond:    cfg.DataSource.RatePerSecond,
	})

	var n notifier.Notifier = notifier.LogNotifier{}
	if cfg.Telegram.BotToken != "" {
		tn, err := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Proxy)
		if err != nil {
			log.WithError(err).Fatal("init telegram notifier")
		}
		n = tn
	} else {
		log.Warn("telegram.bot_token not set, messages go to the log")
	}

	policy := cooldown.DefaultPolicy()
	policy.Windows[model.ClassBuy] = cooldown.Window{Elapsed: cfg.Alerts.BuyCooldown}
	policy.Windows[model.ClassTakeProfit] = cooldown.Window{Elapsed: cfg.Alerts.TakeProfitCooldown}
	policy.Windows[model.ClassStopLoss] = cooldown.Window{Elapsed: cfg.Alerts.StopLossCooldown}
	policy.EscalationMargin = cfg.Alerts.EscalationMargin

	locks := lock.NewKeyed()
	ledger := budget.NewLedger(st, locks)
	svc := service.New(st, st, ledger, locks)

	sched := scheduler.NewScheduler(ctx, col, st, ledger, svc, n, strategy.NewEvaluator(policy),
		service.NewStaticEntitlements(cfg.PremiumAccounts), locks, scheduler.Options{
			Cycle:              cfg.Schedule.Cycle,
			WeeklyRolloverCron: cfg.Schedule.WeeklyRolloverCron,
			PlanReminderCron:   cfg.Schedule.PlanReminderCron,
			PersistTries:       3,
			PersistBackoff:     scheduler.DefaultOptions().PersistBackoff,
		})
	if err := sched.RegisterAll(); err != nil {
		log.WithError(err).Fatal("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Port); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info("RUN_ON_START enabled, running a cycle now")
		go sched.RunNow()
	}

	log.Info("DipSentinel is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping...")
	cancel()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Database.PostgresDSN)
	case "memory":
		log.Warn("using in-memory store, state is lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.Database.SQLitePath)
	}
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.DataSource.Provider {
	case "vstrader":
		return collector.NewVsTraderFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	case "coinpaprika":
		return collector.NewCoinpaprikaFetcher(cfg.DataSource.APIKey, cfg.Proxy)
	case "mock":
		return &collector.MockFetcher{Price: 100}
	default:
		f := collector.NewYahooFetcher(cfg.Proxy)
		if cfg.DataSource.BaseURL != "" {
			f.BaseURL = cfg.DataSource.BaseURL
		}
		return f
	}
}
