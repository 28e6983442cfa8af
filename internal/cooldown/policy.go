// Package cooldown decides whether an alert class may fire again.
package cooldown

import (
	"time"

	"DipSentinel/internal/budget"
	"DipSentinel/internal/model"
)

const (
	DefaultBuyCooldown        = 6 * time.Hour
	DefaultTakeProfitCooldown = 3 * time.Hour
	DefaultStopLossCooldown   = 3 * time.Hour
	DefaultEscalationMargin   = 2.0

	// epsilon absorbs float noise so that boundaries stay inclusive.
	epsilon = 1e-9
)

// Window is how one class measures its cooldown: either an elapsed duration
// or, when Weekly is set, the budget week of the last firing.
type Window struct {
	Elapsed time.Duration
	Weekly  bool
}

// Policy is the per-class cooldown table plus the BUY escalation margin.
type Policy struct {
	Windows          map[model.AlertClass]Window
	EscalationMargin float64
}

// DefaultPolicy returns 6h BUY, 3h TP/SL, weekly DCA and a 2.0 point escalation margin.
func DefaultPolicy() Policy {
	return Policy{
		Windows: map[model.AlertClass]Window{
			model.ClassBuy:        {Elapsed: DefaultBuyCooldown},
			model.ClassTakeProfit: {Elapsed: DefaultTakeProfitCooldown},
			model.ClassStopLoss:   {Elapsed: DefaultStopLossCooldown},
			model.ClassDCA:        {Weekly: true},
		},
		EscalationMargin: DefaultEscalationMargin,
	}
}

// Decision is the outcome of Admit.
type Decision struct {
	Allowed   bool
	Escalated bool // allowed only because the drawdown deepened past the margin
}

// Admit decides whether class may fire for rec at now. dropPct is only consulted for BUY escalation.
func (p Policy) Admit(rec *model.RuleRecord, class model.AlertClass, now time.Time, dropPct float64) Decision {
	last, fired := rec.LastFired[class]
	if !fired || last.IsZero() {
		return Decision{Allowed: true}
	}

	w := p.Windows[class]
	if w.Weekly {
		return Decision{Allowed: !budget.SameWeek(last, now)}
	}
	if now.Sub(last) >= w.Elapsed {
		return Decision{Allowed: true}
	}

	if class == model.ClassBuy && rec.LastBuyDropSent != nil && dropPct-*rec.LastBuyDropSent >= p.EscalationMargin-epsilon {
		return Decision{Allowed: true, Escalated: true}
	}
	return Decision{}
}

// Mark records a firing of class at now.
func Mark(rec *model.RuleRecord, class model.AlertClass, now time.Time) {
	if rec.LastFired == nil {
		rec.LastFired = make(map[model.AlertClass]time.Time, len(model.AllClasses))
	}
	rec.LastFired[class] = now
}
