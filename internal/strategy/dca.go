package strategy

import (
	"github.com/shopspring/decimal"

	"DipSentinel/internal/model"
)

// DCAOutcome is the result of matching tiers against a drawdown.
type DCAOutcome struct {
	Matched    bool
	Exhausted  bool // a tier matched but the dip budget has nothing left
	Suggestion *model.DCASuggestion
}

// SuggestDCA picks the deepest tier whose drawdown is reached and caps its amount by the
// remaining dip budget. A nil or zero-cap budget leaves the amount uncapped.
func SuggestDCA(tiers []model.DCATier, dropPct float64, budget *model.BudgetState) DCAOutcome {
	var matched *model.DCATier
	for i := range tiers {
		if geq(dropPct, tiers[i].DrawdownPct) && (matched == nil || tiers[i].DrawdownPct > matched.DrawdownPct) {
			matched = &tiers[i]
		}
	}
	if matched == nil {
		return DCAOutcome{}
	}

	s := &model.DCASuggestion{
		TierDrawdownPct: matched.DrawdownPct,
		TierAmount:      matched.Amount,
		Amount:          matched.Amount,
	}
	if budget.DipConfigured() {
		remaining := budget.DipRemaining()
		if !remaining.IsPositive() {
			return DCAOutcome{Matched: true, Exhausted: true}
		}
		s.Remaining = &remaining
		if remaining.LessThan(matched.Amount) {
			s.Amount = decimal.Min(matched.Amount, remaining)
			s.Capped = true
		}
	}
	return DCAOutcome{Matched: true, Suggestion: s}
}
