// Package store persists rule records, budgets, weekly plans and alert history.
package store

import (
	"context"

	"github.com/pkg/errors"

	"DipSentinel/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// RuleStore maps (account, instrument) to a rule record. Writes are last-write-wins.
type RuleStore interface {
	LoadRules(ctx context.Context) ([]model.RuleRecord, error)
	GetRule(ctx context.Context, key model.RuleKey) (model.RuleRecord, error)
	ListRules(ctx context.Context, account model.AccountID) ([]model.RuleRecord, error)
	SaveRule(ctx context.Context, rec model.RuleRecord) error
	DeleteRule(ctx context.Context, key model.RuleKey) error
}

// BudgetStore holds one budget state per account.
type BudgetStore interface {
	GetBudget(ctx context.Context, account model.AccountID) (model.BudgetState, error)
	SaveBudget(ctx context.Context, state model.BudgetState) error
	LoadBudgets(ctx context.Context) ([]model.BudgetState, error)
}

// PlanStore holds each account's fixed weekly purchase plan.
type PlanStore interface {
	GetPlan(ctx context.Context, account model.AccountID) ([]model.PlanEntry, error)
	ReplacePlan(ctx context.Context, account model.AccountID, entries []model.PlanEntry) error
	PlanAccounts(ctx context.Context) ([]model.AccountID, error)
}

// HistoryRecorder appends fired intents for later analysis.
type HistoryRecorder interface {
	RecordIntent(ctx context.Context, intent model.NotificationIntent) error
}

// Store is the full persistence substrate.
type Store interface {
	RuleStore
	BudgetStore
	PlanStore
	HistoryRecorder
	Close() error
}

// HistoryEntry is one row of alert history.
type HistoryEntry struct {
	IntentID   string
	AccountID  model.AccountID
	Instrument string
	Class      model.AlertClass
	Price      float64
	DropPct    float64
	Amount     string
	CreatedAt  int64
}

func historyFromIntent(in model.NotificationIntent) HistoryEntry {
	h := HistoryEntry{
		IntentID:   in.ID,
		AccountID:  in.AccountID,
		Instrument: in.Instrument,
		Class:      in.Class,
		Price:      in.Price,
		DropPct:    in.DropPct,
		CreatedAt:  in.CreatedAt.Unix(),
	}
	if in.DCA != nil {
		h.Amount = in.DCA.Amount.String()
	}
	return h
}
