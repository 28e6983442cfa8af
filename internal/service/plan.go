package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/model"
)

// PlanSummary is an account's fixed weekly plan next to its caps.
type PlanSummary struct {
	AccountID     model.AccountID
	Entries       []model.PlanEntry
	Total         decimal.Decimal
	PlanBudget    decimal.Decimal
	DipBudget     decimal.Decimal
	PlanRemaining decimal.Decimal
	HasBudget     bool
	// OverBudget is set when the plan total exceeds a positive plan cap.
	OverBudget bool
}

// SetPlan replaces the account's weekly plan. Duplicate instruments are summed.
func (s *Service) SetPlan(ctx context.Context, account model.AccountID, entries []model.PlanEntry) (PlanSummary, error) {
	merged := make([]model.PlanEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		instrument := model.NormalizeInstrument(e.Instrument)
		if instrument == "" {
			return PlanSummary{}, errors.Wrap(ErrInvalidConfig, "plan instrument is required")
		}
		if !e.Amount.IsPositive() {
			return PlanSummary{}, errors.Wrapf(ErrInvalidConfig, "plan amount for %s must be positive", instrument)
		}
		if i, ok := index[instrument]; ok {
			merged[i].Amount = merged[i].Amount.Add(e.Amount)
			continue
		}
		index[instrument] = len(merged)
		merged = append(merged, model.PlanEntry{Instrument: instrument, Amount: e.Amount})
	}

	if err := s.plans.ReplacePlan(ctx, account, merged); err != nil {
		return PlanSummary{}, errors.Wrapf(err, "replace plan for %d", account)
	}
	log.WithFields(log.Fields{"account": account, "entries": len(merged)}).Info("plan saved")
	return s.GetPlan(ctx, account)
}

// GetPlan returns the plan with totals and the account's current caps.
func (s *Service) GetPlan(ctx context.Context, account model.AccountID) (PlanSummary, error) {
	entries, err := s.plans.GetPlan(ctx, account)
	if err != nil {
		return PlanSummary{}, errors.Wrapf(err, "get plan for %d", account)
	}
	sum := PlanSummary{AccountID: account, Entries: entries, Total: decimal.Zero}
	for _, e := range entries {
		sum.Total = sum.Total.Add(e.Amount)
	}

	state, err := s.ledger.Current(ctx, account)
	if err != nil {
		return PlanSummary{}, err
	}
	if state != nil {
		sum.HasBudget = true
		sum.PlanBudget = state.PlanBudget
		sum.DipBudget = state.DipBudget
		sum.PlanRemaining = state.PlanRemaining()
		sum.OverBudget = state.PlanBudget.IsPositive() && sum.Total.GreaterThan(state.PlanBudget)
	}
	return sum, nil
}

// PlanAccounts lists accounts that have a plan.
func (s *Service) PlanAccounts(ctx context.Context) ([]model.AccountID, error) {
	accounts, err := s.plans.PlanAccounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list plan accounts")
	}
	return accounts, nil
}
