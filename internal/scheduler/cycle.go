package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/metrics"
	"DipSentinel/internal/model"
	"DipSentinel/internal/service"
	"DipSentinel/internal/store"
	"DipSentinel/internal/strategy"
)

// CycleReport summarises one evaluation cycle.
type CycleReport struct {
	Skipped             bool
	Rules               int
	Instruments         int
	Snapshots           int
	Intents             int
	Delivered           int
	DeliveryFailures    int
	PersistenceFailures int
}

// RunCycle loads every rule, fetches each distinct instrument once, evaluates the rules,
// persists changed records and then delivers their intents.
// A cycle that starts while another is running returns a skipped report.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	if !s.running.TryLock() {
		metrics.CyclesSkipped.Inc()
		log.Warn("previous cycle still running, skipped")
		return CycleReport{Skipped: true}, nil
	}
	defer s.running.Unlock()

	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	rules, err := s.Rules.LoadRules(ctx)
	if err != nil {
		return CycleReport{}, errors.Wrap(err, "load rules")
	}

	report := CycleReport{Rules: len(rules)}
	instruments := make(map[string]bool)
	for _, r := range rules {
		if !r.Enabled() {
			continue
		}
		instruments[r.Instrument] = instruments[r.Instrument] || s.entitled(r.AccountID)
	}
	report.Instruments = len(instruments)

	snapshots := s.Source.CollectAll(ctx, instruments)
	report.Snapshots = len(snapshots)

	for _, r := range rules {
		if ctx.Err() != nil {
			break
		}
		snap, ok := snapshots[r.Instrument]
		if !ok {
			continue
		}
		intents, ok := s.evaluateRecord(ctx, r.Key(), snap)
		if !ok {
			report.PersistenceFailures++
			continue
		}
		for _, intent := range intents {
			report.Intents++
			if s.dispatch(ctx, intent) {
				report.Delivered++
			} else {
				report.DeliveryFailures++
			}
		}
	}

	metrics.RulesEvaluated.Set(float64(len(rules)))
	metrics.CyclesTotal.Inc()
	return report, nil
}

func (s *Scheduler) entitled(account model.AccountID) bool {
	return s.Entitlements != nil && s.Entitlements.IsEntitled(account)
}

// evaluateRecord evaluates one record under its lock and persists the result.
// ok is false only when a changed record could not be saved; its intents are then dropped.
func (s *Scheduler) evaluateRecord(ctx context.Context, key model.RuleKey, snap *model.Snapshot) (intents []model.NotificationIntent, ok bool) {
	logger := log.WithFields(log.Fields{"account": key.AccountID, "instrument": key.Instrument})
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("record evaluation panicked: %v", r)
			intents, ok = nil, true
		}
	}()

	unlock := s.locks.Lock(service.RuleLockKey(key))
	defer unlock()

	// Re-read under the lock so concurrent edits and deletes are respected.
	rec, err := s.Rules.GetRule(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, true
	}
	if err != nil {
		logger.WithError(err).Error("reload rule")
		return nil, true
	}

	state, err := s.Ledger.Current(ctx, key.AccountID)
	if err != nil {
		logger.WithError(err).Error("load budget")
		return nil, true
	}

	res := s.Evaluator.Evaluate(strategy.Input{
		Snapshot: snap,
		Rule:     rec,
		Budget:   state,
		Entitled: s.entitled(key.AccountID),
		Now:      s.Now(),
	})
	if !res.Changed {
		return nil, true
	}

	if err := s.persist(ctx, res.Rule); err != nil {
		metrics.PersistenceFailures.Inc()
		logger.WithError(err).WithField("intents", len(res.Intents)).Error("rule state not persisted, intents dropped")
		return nil, false
	}
	return res.Intents, true
}

func (s *Scheduler) persist(ctx context.Context, rec model.RuleRecord) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.PersistBackoff
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.Rules.SaveRule(ctx, rec)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.PersistTries))
	return err
}

// dispatch records the intent in history and hands it to the notifier.
// Delivery failures are logged and counted; the fired state is already saved.
func (s *Scheduler) dispatch(ctx context.Context, intent model.NotificationIntent) bool {
	metrics.IntentsFired.WithLabelValues(string(intent.Class)).Inc()
	logger := log.WithFields(log.Fields{
		"account":    intent.AccountID,
		"instrument": intent.Instrument,
		"class":      intent.Class,
	})

	if err := s.Rules.RecordIntent(ctx, intent); err != nil {
		logger.WithError(err).Warn("record alert history")
	}
	if err := s.Notifier.Deliver(ctx, intent); err != nil {
		metrics.DeliveryFailures.Inc()
		logger.WithError(err).Error("delivery failed")
		return false
	}
	logger.Debug("intent delivered")
	return true
}
