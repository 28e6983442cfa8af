package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FactorScore represents a single factor's contribution to an opportunity score.
type FactorScore struct {
	Name       string
	RawScore   float64
	Weight     float64
	Weighted   float64
	Commentary string
}

// Opportunity score labels, strongest first.
const (
	LabelStrong = "Strong opportunity"
	LabelGood   = "Good opportunity"
	LabelFair   = "Fair opportunity"
	LabelWeak   = "Weak opportunity"
)

// OpportunityScore is a cosmetic summary shown to entitled accounts. It never gates firing.
type OpportunityScore struct {
	Factors []FactorScore
	Total   float64
	Label   string
}

// DCASuggestion is the amount proposed for a dip purchase.
type DCASuggestion struct {
	TierDrawdownPct float64
	TierAmount      decimal.Decimal
	Amount          decimal.Decimal
	Capped          bool
	Remaining       *decimal.Decimal // nil when no dip budget is configured
}

// NotificationIntent is the output of evaluation: a message that should be delivered.
type NotificationIntent struct {
	ID           string
	AccountID    AccountID
	Instrument   string
	Class        AlertClass
	Price        float64
	WindowHigh   float64
	DropPct      float64
	ThresholdPct float64
	EntryPrice   float64
	TargetPrice  float64
	Escalated    bool
	DCA          *DCASuggestion
	// BudgetExhausted is set on a BUY intent when tiers matched but the dip budget has nothing left.
	BudgetExhausted bool
	Extended        *Indicators
	Score           *OpportunityScore
	CreatedAt       time.Time
}
