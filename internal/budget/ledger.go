package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/lock"
	"DipSentinel/internal/model"
	"DipSentinel/internal/store"
)

var (
	// ErrInvalidAmount is returned for non-positive spends or negative caps.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoBudget is returned when confirming a spend for an account without a budget.
	ErrNoBudget = errors.New("no budget configured")
	// ErrUnknownCategory is returned for a category other than plan or dip.
	ErrUnknownCategory = errors.New("unknown budget category")
)

// Ledger owns every read and write of weekly budget counters.
// Each operation holds the account's budget lock and applies rollover first.
type Ledger struct {
	store store.BudgetStore
	locks *lock.Keyed
	Now   func() time.Time
}

// NewLedger creates a Ledger over the given store and shared lock set.
func NewLedger(s store.BudgetStore, locks *lock.Keyed) *Ledger {
	return &Ledger{store: s, locks: locks, Now: time.Now}
}

// LockKey is the lock key guarding an account's budget state.
func LockKey(account model.AccountID) string {
	return fmt.Sprintf("budget:%d", account)
}

// Current returns the account's rolled-over budget state, or nil when none is configured.
func (l *Ledger) Current(ctx context.Context, account model.AccountID) (*model.BudgetState, error) {
	unlock := l.locks.Lock(LockKey(account))
	defer unlock()

	return l.load(ctx, account)
}

// SetCaps sets the weekly plan and dip caps, creating the state if needed.
func (l *Ledger) SetCaps(ctx context.Context, account model.AccountID, plan, dip decimal.Decimal) (model.BudgetState, error) {
	if plan.IsNegative() || dip.IsNegative() {
		return model.BudgetState{}, errors.Wrap(ErrInvalidAmount, "caps must not be negative")
	}

	unlock := l.locks.Lock(LockKey(account))
	defer unlock()

	state, err := l.load(ctx, account)
	if err != nil {
		return model.BudgetState{}, err
	}
	if state == nil {
		state = &model.BudgetState{
			AccountID: account,
			WeekStart: WeekStart(l.Now()),
			PlanSpent: decimal.Zero,
			DipSpent:  decimal.Zero,
		}
	}
	state.PlanBudget = plan
	state.DipBudget = dip
	if err := l.save(ctx, state); err != nil {
		return model.BudgetState{}, err
	}
	log.WithFields(log.Fields{"account": account, "plan": plan.String(), "dip": dip.String()}).Info("budget caps set")
	return *state, nil
}

// Confirm adds a user-asserted spend to the plan or dip counter.
func (l *Ledger) Confirm(ctx context.Context, account model.AccountID, category model.BudgetCategory, amount decimal.Decimal) (model.BudgetState, error) {
	if !amount.IsPositive() {
		return model.BudgetState{}, errors.Wrap(ErrInvalidAmount, "spend must be positive")
	}
	if category != model.CategoryPlan && category != model.CategoryDip {
		return model.BudgetState{}, errors.Wrapf(ErrUnknownCategory, "%q", category)
	}

	unlock := l.locks.Lock(LockKey(account))
	defer unlock()

	state, err := l.load(ctx, account)
	if err != nil {
		return model.BudgetState{}, err
	}
	if state == nil {
		return model.BudgetState{}, errors.Wrapf(ErrNoBudget, "account %d", account)
	}

	switch category {
	case model.CategoryPlan:
		state.PlanSpent = state.PlanSpent.Add(amount)
	case model.CategoryDip:
		state.DipSpent = state.DipSpent.Add(amount)
	}
	if err := l.save(ctx, state); err != nil {
		return model.BudgetState{}, err
	}
	log.WithFields(log.Fields{"account": account, "category": category, "amount": amount.String()}).Info("spend confirmed")
	return *state, nil
}

// Sweep applies rollover to every stored budget and returns how many were reset.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	states, err := l.store.LoadBudgets(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load budgets")
	}
	rolled := 0
	for _, s := range states {
		if err := ctx.Err(); err != nil {
			return rolled, err
		}
		unlock := l.locks.Lock(LockKey(s.AccountID))
		state, err := l.loadRaw(ctx, s.AccountID)
		if err == nil && state != nil && EnsureWeekRollover(state, l.Now()) {
			if err = l.save(ctx, state); err == nil {
				rolled++
			}
		}
		unlock()
		if err != nil {
			log.WithError(err).WithField("account", s.AccountID).Error("weekly rollover failed")
		}
	}
	return rolled, nil
}

// load reads the state and persists a rollover if one was due. Caller holds the lock.
func (l *Ledger) load(ctx context.Context, account model.AccountID) (*model.BudgetState, error) {
	state, err := l.loadRaw(ctx, account)
	if err != nil || state == nil {
		return nil, err
	}
	if EnsureWeekRollover(state, l.Now()) {
		if err := l.save(ctx, state); err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"account": account, "week_start": state.WeekStart.Format("2006-01-02")}).Debug("budget week rolled over")
	}
	return state, nil
}

func (l *Ledger) loadRaw(ctx context.Context, account model.AccountID) (*model.BudgetState, error) {
	state, err := l.store.GetBudget(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load budget for %d", account)
	}
	return &state, nil
}

func (l *Ledger) save(ctx context.Context, state *model.BudgetState) error {
	state.UpdatedAt = l.Now()
	if err := l.store.SaveBudget(ctx, *state); err != nil {
		return errors.Wrapf(err, "save budget for %d", state.AccountID)
	}
	return nil
}
