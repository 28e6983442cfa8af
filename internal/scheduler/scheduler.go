package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/budget"
	"DipSentinel/internal/lock"
	"DipSentinel/internal/model"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/service"
	"DipSentinel/internal/store"
	"DipSentinel/internal/strategy"
)

// SnapshotSource fetches one snapshot per instrument. The map value asks for extended fields.
type SnapshotSource interface {
	CollectAll(ctx context.Context, instruments map[string]bool) map[string]*model.Snapshot
}

// RuleRepository is the slice of the store the cycle touches.
type RuleRepository interface {
	store.RuleStore
	store.HistoryRecorder
}

// Options holds cron specs and retry tuning.
type Options struct {
	Cycle              time.Duration
	WeeklyRolloverCron string
	PlanReminderCron   string
	PersistTries       uint
	PersistBackoff     time.Duration
}

// DefaultOptions returns a 5 minute cycle, Monday 00:00 rollover and Monday 08:00 reminder, all UTC.
func DefaultOptions() Options {
	return Options{
		Cycle:              5 * time.Minute,
		WeeklyRolloverCron: "0 0 0 * * 1",
		PlanReminderCron:   "0 0 8 * * 1",
		PersistTries:       3,
		PersistBackoff:     500 * time.Millisecond,
	}
}

// Scheduler drives the evaluation cycle and the weekly jobs.
type Scheduler struct {
	Cron         *cron.Cron
	Source       SnapshotSource
	Rules        RuleRepository
	Ledger       *budget.Ledger
	Service      *service.Service
	Notifier     notifier.Notifier
	Evaluator    *strategy.Evaluator
	Entitlements service.Entitlements
	Ctx          context.Context
	Now          func() time.Time

	opts    Options
	locks   *lock.Keyed
	running sync.Mutex
}

// NewScheduler creates a Scheduler. locks must be shared with the service.
func NewScheduler(ctx context.Context, src SnapshotSource, rules RuleRepository, ledger *budget.Ledger,
	svc *service.Service, n notifier.Notifier, ev *strategy.Evaluator, ent service.Entitlements,
	locks *lock.Keyed, opts Options) *Scheduler {
	defaults := DefaultOptions()
	if opts.Cycle <= 0 {
		opts.Cycle = defaults.Cycle
	}
	if opts.WeeklyRolloverCron == "" {
		opts.WeeklyRolloverCron = defaults.WeeklyRolloverCron
	}
	if opts.PlanReminderCron == "" {
		opts.PlanReminderCron = defaults.PlanReminderCron
	}
	if opts.PersistTries == 0 {
		opts.PersistTries = defaults.PersistTries
	}

	logger := cron.PrintfLogger(log.StandardLogger())
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		Source:       src,
		Rules:        rules,
		Ledger:       ledger,
		Service:      svc,
		Notifier:     n,
		Evaluator:    ev,
		Entitlements: ent,
		Ctx:          ctx,
		Now:          time.Now,
		opts:         opts,
		locks:        locks,
	}
}

// RegisterAll registers the evaluation cycle, the weekly rollover sweep and the plan reminder.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.Cron.AddFunc(fmt.Sprintf("@every %s", s.opts.Cycle), s.cycleTask); err != nil {
		return errors.Wrap(err, "register cycle task")
	}
	if _, err := s.Cron.AddFunc(s.opts.WeeklyRolloverCron, s.rolloverTask); err != nil {
		return errors.Wrap(err, "register weekly rollover")
	}
	if _, err := s.Cron.AddFunc(s.opts.PlanReminderCron, s.planReminderTask); err != nil {
		return errors.Wrap(err, "register plan reminder")
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.WithField("cycle", s.opts.Cycle).Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info("scheduler stopped")
}

// RunNow executes one cycle immediately (for RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.cycleTask()
}

func (s *Scheduler) cycleTask() {
	report, err := s.RunCycle(s.Ctx)
	if err != nil {
		log.WithError(err).Error("evaluation cycle failed")
		return
	}
	if report.Skipped {
		return
	}
	log.WithFields(log.Fields{
		"rules":       report.Rules,
		"instruments": report.Instruments,
		"snapshots":   report.Snapshots,
		"intents":     report.Intents,
		"delivered":   report.Delivered,
	}).Info("cycle finished")
}

func (s *Scheduler) rolloverTask() {
	n, err := s.Ledger.Sweep(s.Ctx)
	if err != nil {
		log.WithError(err).Error("weekly rollover sweep failed")
		return
	}
	log.WithField("rolled", n).Info("weekly budgets rolled over")
}

// SendPlanReminders sends every account with a plan its plan summary for the new week.
func (s *Scheduler) SendPlanReminders(ctx context.Context) (int, error) {
	accounts, err := s.Service.PlanAccounts(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, account := range accounts {
		sum, err := s.Service.GetPlan(ctx, account)
		if err != nil {
			log.WithError(err).WithField("account", account).Error("load plan for reminder")
			continue
		}
		if err := s.Notifier.SendText(ctx, account, notifier.FormatPlanSummary(sum)); err != nil {
			log.WithError(err).WithField("account", account).Warn("plan reminder not delivered")
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Scheduler) planReminderTask() {
	n, err := s.SendPlanReminders(s.Ctx)
	if err != nil {
		log.WithError(err).Error("plan reminder failed")
		return
	}
	log.WithField("sent", n).Info("plan reminders sent")
}
