package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/budget"
	"DipSentinel/internal/lock"
	"DipSentinel/internal/model"
	"DipSentinel/internal/store"
)

// ErrInvalidConfig is returned for rule or plan input that must not be persisted.
var ErrInvalidConfig = errors.New("invalid configuration")

// RuleLockKey is the lock key guarding one rule record.
// The scheduler takes the same key while evaluating the record.
func RuleLockKey(key model.RuleKey) string {
	return "rule:" + key.String()
}

// RulePatch carries the fields to change on a rule. Nil fields are left untouched.
type RulePatch struct {
	BuyDropPct    *float64
	EntryPrice    *float64
	TakeProfitPct *float64
	StopLossPct   *float64
	DCATiers      *[]model.DCATier

	ClearBuy        bool
	ClearEntry      bool
	ClearTakeProfit bool
	ClearStopLoss   bool
}

// Service is the inbound API every front-end drives.
type Service struct {
	rules  store.RuleStore
	plans  store.PlanStore
	ledger *budget.Ledger
	locks  *lock.Keyed
	Now    func() time.Time
}

// New creates a Service. locks must be the set shared with the scheduler.
func New(rules store.RuleStore, plans store.PlanStore, ledger *budget.Ledger, locks *lock.Keyed) *Service {
	return &Service{rules: rules, plans: plans, ledger: ledger, locks: locks, Now: time.Now}
}

// UpsertRule creates the (account, instrument) record or applies patch to the existing one.
func (s *Service) UpsertRule(ctx context.Context, account model.AccountID, instrument string, patch RulePatch) (model.RuleRecord, error) {
	instrument = model.NormalizeInstrument(instrument)
	if instrument == "" {
		return model.RuleRecord{}, errors.Wrap(ErrInvalidConfig, "instrument is required")
	}
	if err := patch.validate(); err != nil {
		return model.RuleRecord{}, err
	}

	key := model.RuleKey{AccountID: account, Instrument: instrument}
	unlock := s.locks.Lock(RuleLockKey(key))
	defer unlock()

	now := s.Now()
	rec, err := s.rules.GetRule(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = model.RuleRecord{AccountID: account, Instrument: instrument, CreatedAt: now}
	case err != nil:
		return model.RuleRecord{}, errors.Wrapf(err, "load rule %s", key)
	}

	patch.apply(&rec)
	rec.Normalize()
	rec.UpdatedAt = now
	if err := s.rules.SaveRule(ctx, rec); err != nil {
		return model.RuleRecord{}, errors.Wrapf(err, "save rule %s", key)
	}
	log.WithFields(log.Fields{"account": account, "instrument": instrument}).Info("rule saved")
	return rec, nil
}

// DeleteRule removes a record. Deleting a missing record returns store.ErrNotFound.
func (s *Service) DeleteRule(ctx context.Context, account model.AccountID, instrument string) error {
	key := model.RuleKey{AccountID: account, Instrument: model.NormalizeInstrument(instrument)}
	unlock := s.locks.Lock(RuleLockKey(key))
	defer unlock()

	if err := s.rules.DeleteRule(ctx, key); err != nil {
		return errors.Wrapf(err, "delete rule %s", key)
	}
	log.WithFields(log.Fields{"account": account, "instrument": key.Instrument}).Info("rule deleted")
	return nil
}

// GetRule returns one record.
func (s *Service) GetRule(ctx context.Context, account model.AccountID, instrument string) (model.RuleRecord, error) {
	key := model.RuleKey{AccountID: account, Instrument: model.NormalizeInstrument(instrument)}
	rec, err := s.rules.GetRule(ctx, key)
	if err != nil {
		return model.RuleRecord{}, errors.Wrapf(err, "get rule %s", key)
	}
	return rec, nil
}

// ListRules returns every record of an account ordered by instrument.
func (s *Service) ListRules(ctx context.Context, account model.AccountID) ([]model.RuleRecord, error) {
	recs, err := s.rules.ListRules(ctx, account)
	if err != nil {
		return nil, errors.Wrapf(err, "list rules for %d", account)
	}
	return recs, nil
}

// SetBudget sets the weekly plan and dip caps.
func (s *Service) SetBudget(ctx context.Context, account model.AccountID, plan, dip decimal.Decimal) (model.BudgetState, error) {
	return s.ledger.SetCaps(ctx, account, plan, dip)
}

// ConfirmSpend records a purchase the user says they made.
func (s *Service) ConfirmSpend(ctx context.Context, account model.AccountID, category model.BudgetCategory, amount decimal.Decimal) (model.BudgetState, error) {
	return s.ledger.Confirm(ctx, account, category, amount)
}

// GetBudget returns the rolled-over budget state. ok is false when the account has none.
func (s *Service) GetBudget(ctx context.Context, account model.AccountID) (state model.BudgetState, ok bool, err error) {
	st, err := s.ledger.Current(ctx, account)
	if err != nil || st == nil {
		return model.BudgetState{}, false, err
	}
	return *st, true, nil
}

func (p RulePatch) validate() error {
	pct := func(name string, v *float64) error {
		if v != nil && (*v <= 0 || *v > 100) {
			return errors.Wrapf(ErrInvalidConfig, "%s must be in (0, 100], got %v", name, *v)
		}
		return nil
	}
	if err := pct("buy drop", p.BuyDropPct); err != nil {
		return err
	}
	if err := pct("stop loss", p.StopLossPct); err != nil {
		return err
	}
	if p.TakeProfitPct != nil && *p.TakeProfitPct <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "take profit must be positive, got %v", *p.TakeProfitPct)
	}
	if p.EntryPrice != nil && *p.EntryPrice <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "entry price must be positive, got %v", *p.EntryPrice)
	}
	if p.DCATiers != nil {
		for _, t := range *p.DCATiers {
			if t.DrawdownPct <= 0 || t.DrawdownPct > 100 {
				return errors.Wrapf(ErrInvalidConfig, "tier drawdown must be in (0, 100], got %v", t.DrawdownPct)
			}
			if !t.Amount.IsPositive() {
				return errors.Wrapf(ErrInvalidConfig, "tier amount must be positive, got %s", t.Amount)
			}
		}
	}
	return nil
}

func (p RulePatch) apply(rec *model.RuleRecord) {
	set := func(dst **float64, v *float64, clear bool) {
		switch {
		case clear:
			*dst = nil
		case v != nil:
			*dst = model.Float(*v)
		}
	}
	set(&rec.BuyDropPct, p.BuyDropPct, p.ClearBuy)
	set(&rec.EntryPrice, p.EntryPrice, p.ClearEntry)
	set(&rec.TakeProfitPct, p.TakeProfitPct, p.ClearTakeProfit)
	set(&rec.StopLossPct, p.StopLossPct, p.ClearStopLoss)
	if p.DCATiers != nil {
		rec.DCATiers = append([]model.DCATier(nil), (*p.DCATiers)...)
	}
}
