package strategy

import (
	"math"
	"time"

	"github.com/google/uuid"

	"DipSentinel/internal/cooldown"
	"DipSentinel/internal/model"
)

// Evaluator turns a snapshot and a rule record into notification intents.
// It performs no I/O; the caller persists the returned record before delivering.
type Evaluator struct {
	Policy cooldown.Policy
	NewID  func() string
}

// NewEvaluator creates an Evaluator using the given cooldown policy.
func NewEvaluator(policy cooldown.Policy) *Evaluator {
	return &Evaluator{Policy: policy, NewID: uuid.NewString}
}

// Input bundles everything one evaluation needs.
type Input struct {
	Snapshot *model.Snapshot
	Rule     model.RuleRecord
	Budget   *model.BudgetState // nil when the account has no budget
	Entitled bool
	Now      time.Time
}

// Result carries the intents and the updated record.
type Result struct {
	Intents []model.NotificationIntent
	Rule    model.RuleRecord
	Changed bool
}

// Evaluate applies BUY, DCA, TP and SL independently. One class firing never suppresses another.
func (e *Evaluator) Evaluate(in Input) Result {
	rec := in.Rule.Clone()
	res := Result{}
	snap := in.Snapshot
	if snap == nil {
		res.Rule = rec
		return res
	}

	buy := e.evaluateBuy(&rec, in)
	dca := e.evaluateDCA(&rec, in, buy)
	if buy != nil {
		res.Intents = append(res.Intents, *buy)
	}
	if dca != nil {
		res.Intents = append(res.Intents, *dca)
	}

	if rec.HasTakeProfit() {
		target := *rec.EntryPrice * (1 + *rec.TakeProfitPct/100)
		if geq(snap.Price, target) && e.Policy.Admit(&rec, model.ClassTakeProfit, in.Now, snap.DropPct).Allowed {
			intent := e.newIntent(&rec, in, model.ClassTakeProfit)
			intent.EntryPrice = *rec.EntryPrice
			intent.TargetPrice = target
			intent.ThresholdPct = *rec.TakeProfitPct
			cooldown.Mark(&rec, model.ClassTakeProfit, in.Now)
			res.Intents = append(res.Intents, intent)
		}
	}

	if rec.HasStopLoss() {
		target := *rec.EntryPrice * (1 - *rec.StopLossPct/100)
		if leq(snap.Price, target) && e.Policy.Admit(&rec, model.ClassStopLoss, in.Now, snap.DropPct).Allowed {
			intent := e.newIntent(&rec, in, model.ClassStopLoss)
			intent.EntryPrice = *rec.EntryPrice
			intent.TargetPrice = target
			intent.ThresholdPct = *rec.StopLossPct
			cooldown.Mark(&rec, model.ClassStopLoss, in.Now)
			res.Intents = append(res.Intents, intent)
		}
	}

	res.Rule = rec
	res.Changed = len(res.Intents) > 0
	return res
}

func (e *Evaluator) evaluateBuy(rec *model.RuleRecord, in Input) *model.NotificationIntent {
	snap := in.Snapshot
	if rec.BuyDropPct == nil || !geq(snap.DropPct, *rec.BuyDropPct) {
		return nil
	}
	d := e.Policy.Admit(rec, model.ClassBuy, in.Now, snap.DropPct)
	if !d.Allowed {
		return nil
	}
	intent := e.newIntent(rec, in, model.ClassBuy)
	intent.ThresholdPct = *rec.BuyDropPct
	intent.Escalated = d.Escalated
	e.attachExtended(&intent, in)

	cooldown.Mark(rec, model.ClassBuy, in.Now)
	rec.LastBuyDropSent = model.Float(snap.DropPct)
	return &intent
}

// evaluateDCA runs on its own weekly slot and only while the BUY threshold holds.
// The suggestion rides on the BUY intent when one fired this cycle; when only the BUY
// cooldown held BUY back it is returned as a standalone DCA intent.
func (e *Evaluator) evaluateDCA(rec *model.RuleRecord, in Input, buy *model.NotificationIntent) *model.NotificationIntent {
	if len(rec.DCATiers) == 0 || rec.BuyDropPct == nil || !geq(in.Snapshot.DropPct, *rec.BuyDropPct) {
		return nil
	}
	out := SuggestDCA(rec.DCATiers, in.Snapshot.DropPct, in.Budget)
	if !out.Matched {
		return nil
	}
	if out.Exhausted {
		if buy != nil {
			buy.BudgetExhausted = true
		}
		return nil
	}
	if !e.Policy.Admit(rec, model.ClassDCA, in.Now, in.Snapshot.DropPct).Allowed {
		return nil
	}
	cooldown.Mark(rec, model.ClassDCA, in.Now)

	if buy != nil {
		buy.DCA = out.Suggestion
		return nil
	}
	intent := e.newIntent(rec, in, model.ClassDCA)
	intent.ThresholdPct = out.Suggestion.TierDrawdownPct
	intent.DCA = out.Suggestion
	e.attachExtended(&intent, in)
	return &intent
}

func (e *Evaluator) newIntent(rec *model.RuleRecord, in Input, class model.AlertClass) model.NotificationIntent {
	return model.NotificationIntent{
		ID:         e.NewID(),
		AccountID:  rec.AccountID,
		Instrument: rec.Instrument,
		Class:      class,
		Price:      in.Snapshot.Price,
		WindowHigh: in.Snapshot.WindowHigh,
		DropPct:    in.Snapshot.DropPct,
		CreatedAt:  in.Now,
	}
}

func (e *Evaluator) attachExtended(intent *model.NotificationIntent, in Input) {
	if !in.Entitled || !in.Snapshot.Indicators.HasAny() {
		return
	}
	ind := in.Snapshot.Indicators
	intent.Extended = &ind
	intent.Score = ScoreOpportunity(in.Snapshot)
}

const tolerance = 1e-9

// geq is a >= b with float noise absorbed, so that boundaries stay inclusive.
func geq(a, b float64) bool {
	return a >= b || math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}

func leq(a, b float64) bool {
	return a <= b || math.Abs(a-b) <= tolerance*math.Max(1, math.Abs(b))
}
