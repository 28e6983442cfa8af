package notifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"DipSentinel/internal/model"
	"DipSentinel/internal/service"
)

func TestFormatBuyIntentWithCappedDCA(t *testing.T) {
	remaining := decimal.NewFromInt(10)
	text := FormatIntent(model.NotificationIntent{
		Instrument:   "SPY",
		Class:        model.ClassBuy,
		Price:        1234.5,
		WindowHigh:   1500,
		DropPct:      17.7,
		ThresholdPct: 10,
		DCA: &model.DCASuggestion{
			TierDrawdownPct: 15,
			TierAmount:      decimal.NewFromInt(25),
			Amount:          decimal.NewFromInt(10),
			Capped:          true,
			Remaining:       &remaining,
		},
	})

	assert.Contains(t, text, "BUY alert")
	assert.Contains(t, text, "1,234.5")
	assert.Contains(t, text, "Drop: 17.70% (threshold 10.00%)")
	assert.Contains(t, text, "Suggested DCA: $10 (tier 15%)")
	assert.Contains(t, text, "Capped from $25")
	assert.NotContains(t, text, "Indicators")
}

func TestFormatEscalatedBuyWithExhaustedBudget(t *testing.T) {
	text := FormatIntent(model.NotificationIntent{
		Instrument:      "QQQ",
		Class:           model.ClassBuy,
		Escalated:       true,
		BudgetExhausted: true,
	})
	assert.Contains(t, text, "deeper drop")
	assert.Contains(t, text, "budget used up")
	assert.NotContains(t, text, "Suggested DCA")
}

func TestFormatTakeProfitAndStopLoss(t *testing.T) {
	tp := FormatIntent(model.NotificationIntent{
		Instrument: "AAPL", Class: model.ClassTakeProfit,
		Price: 112, EntryPrice: 100, TargetPrice: 112, ThresholdPct: 12,
	})
	assert.Contains(t, tp, "TAKE PROFIT")
	assert.Contains(t, tp, "(+12.00%)")

	sl := FormatIntent(model.NotificationIntent{
		Instrument: "AAPL", Class: model.ClassStopLoss,
		Price: 90, EntryPrice: 100, TargetPrice: 92, ThresholdPct: 8,
	})
	assert.Contains(t, sl, "STOP LOSS")
	assert.Contains(t, sl, "(-8.00%)")
}

func TestFormatEscapesInstrument(t *testing.T) {
	text := FormatIntent(model.NotificationIntent{Instrument: "A<B", Class: model.ClassDCA})
	assert.Contains(t, text, "A&lt;B")
}

func TestFormatExtendedFields(t *testing.T) {
	text := FormatIntent(model.NotificationIntent{
		Instrument: "SPY",
		Class:      model.ClassBuy,
		Price:      90,
		Extended:   &model.Indicators{SMA200: model.Float(100), RSI14: model.Float(28)},
		Score:      &model.OpportunityScore{Total: 1.3, Label: model.LabelStrong},
	})
	assert.Contains(t, text, "SMA200: 100 (-10.0%)")
	assert.Contains(t, text, "RSI14: 28")
	assert.Contains(t, text, "Strong opportunity")
}

func TestFormatBudget(t *testing.T) {
	text := FormatBudget(model.BudgetState{
		WeekStart:  time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		PlanSpent:  decimal.NewFromInt(20),
		PlanBudget: decimal.NewFromInt(100),
		DipSpent:   decimal.NewFromInt(1500),
		DipBudget:  decimal.NewFromInt(2000),
	})
	assert.Contains(t, text, "2024-03-04")
	assert.Contains(t, text, "Plan: $20 of $100 spent, $80 left")
	assert.Contains(t, text, "Dip: $1,500 of $2,000 spent, $500 left")
}

func TestFormatPlanSummary(t *testing.T) {
	text := FormatPlanSummary(service.PlanSummary{
		Entries: []model.PlanEntry{
			{Instrument: "QQQ", Amount: decimal.NewFromInt(30)},
			{Instrument: "SCHD", Amount: decimal.NewFromInt(20)},
		},
		Total:      decimal.NewFromInt(50),
		PlanBudget: decimal.NewFromInt(40),
		HasBudget:  true,
		OverBudget: true,
	})
	assert.Contains(t, text, "• QQQ: $30")
	assert.Contains(t, text, "Plan total: $50")
	assert.Contains(t, text, "above the weekly budget")

	assert.Contains(t, FormatPlanSummary(service.PlanSummary{}), "No plan configured.")
}

func TestScoreLabelTranslation(t *testing.T) {
	for _, label := range []string{model.LabelStrong, model.LabelGood, model.LabelFair, model.LabelWeak} {
		assert.Equal(t, label, scoreLabel(label))
	}
	assert.Equal(t, "a&lt;b", scoreLabel("a<b"))
}
