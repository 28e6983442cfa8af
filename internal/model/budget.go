package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetCategory selects which weekly counter a confirmed spend goes to.
type BudgetCategory string

const (
	CategoryPlan BudgetCategory = "plan"
	CategoryDip  BudgetCategory = "dip"
)

// BudgetState tracks one account's weekly plan and dip spending.
type BudgetState struct {
	AccountID  AccountID       `json:"account_id"`
	WeekStart  time.Time       `json:"week_start"`
	PlanSpent  decimal.Decimal `json:"weekly_plan_spent"`
	DipSpent   decimal.Decimal `json:"weekly_dip_spent"`
	PlanBudget decimal.Decimal `json:"weekly_plan_budget"`
	DipBudget  decimal.Decimal `json:"weekly_dip_budget"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DipConfigured reports whether a dip cap has been set for the account.
func (b *BudgetState) DipConfigured() bool {
	return b != nil && b.DipBudget.IsPositive()
}

// DipRemaining returns the dip cap minus what was spent this week.
func (b *BudgetState) DipRemaining() decimal.Decimal {
	return b.DipBudget.Sub(b.DipSpent)
}

// PlanRemaining returns the plan cap minus what was spent this week.
func (b *BudgetState) PlanRemaining() decimal.Decimal {
	return b.PlanBudget.Sub(b.PlanSpent)
}

// PlanEntry is one line of an account's fixed weekly purchase plan.
type PlanEntry struct {
	Instrument string          `json:"instrument"`
	Amount     decimal.Decimal `json:"amount"`
}
