package strategy

import (
	"fmt"

	"DipSentinel/internal/model"
)

// Score labels, highest threshold first.
var scoreLabels = []struct {
	MinScore float64
	Label    string
}{
	{1.2, model.LabelStrong},
	{0.6, model.LabelGood},
	{0.0, model.LabelFair},
}

// DefaultScoreLabel is used for scores below every threshold.
const DefaultScoreLabel = model.LabelWeak

func mapScoreLabel(total float64) string {
	for _, l := range scoreLabels {
		if total >= l.MinScore {
			return l.Label
		}
	}
	return DefaultScoreLabel
}

// ScoreOpportunity summarises the extended indicators into a single cosmetic score.
// Factors whose indicator is undefined are left out. Returns nil when nothing can be scored.
func ScoreOpportunity(snap *model.Snapshot) *model.OpportunityScore {
	var factors []model.FactorScore
	if f, ok := scoreSMA200Deviation(snap); ok {
		factors = append(factors, f)
	}
	if f, ok := scoreRSI(snap); ok {
		factors = append(factors, f)
	}
	factors = append(factors, scoreDrawdown(snap))
	if f, ok := scoreVolume(snap); ok {
		factors = append(factors, f)
	}
	if len(factors) == 1 && !snap.Indicators.HasAny() {
		return nil
	}

	total := 0.0
	for _, f := range factors {
		total += f.Weighted
	}
	return &model.OpportunityScore{Factors: factors, Total: total, Label: mapScoreLabel(total)}
}

func factor(name string, raw, weight float64, commentary string) model.FactorScore {
	return model.FactorScore{Name: name, RawScore: raw, Weight: weight, Weighted: raw * weight, Commentary: commentary}
}

// scoreSMA200Deviation rewards a price below the 200-day average.
// Weight: 0.40
func scoreSMA200Deviation(snap *model.Snapshot) (model.FactorScore, bool) {
	if snap.SMA200 == nil || *snap.SMA200 == 0 {
		return model.FactorScore{}, false
	}
	deviation := (snap.Price - *snap.SMA200) / *snap.SMA200 * 100

	var score float64
	switch {
	case deviation <= -20:
		score = 2.0
	case deviation <= -10:
		score = 1.5
	case deviation <= -5:
		score = 1.0
	case deviation <= 0:
		score = 0.5
	case deviation <= 5:
		score = 0
	case deviation <= 10:
		score = -0.5
	case deviation <= 20:
		score = -1.0
	default:
		score = -2.0
	}
	return factor("SMA200 deviation", score, 0.40, fmt.Sprintf("%+.1f%%", deviation)), true
}

// scoreRSI rewards oversold readings.
// Weight: 0.30
func scoreRSI(snap *model.Snapshot) (model.FactorScore, bool) {
	if snap.RSI14 == nil {
		return model.FactorScore{}, false
	}
	rsi := *snap.RSI14
	var score float64
	switch {
	case rsi <= 25:
		score = 2.0
	case rsi <= 30:
		score = 1.5
	case rsi <= 40:
		score = 1.0
	case rsi <= 45:
		score = 0.5
	case rsi <= 55:
		score = 0
	case rsi <= 70:
		score = -1.0
	default:
		score = -2.0
	}
	return factor("RSI14", score, 0.30, fmt.Sprintf("RSI=%.0f", rsi)), true
}

// scoreDrawdown rewards distance below the trailing high.
// Weight: 0.20
func scoreDrawdown(snap *model.Snapshot) model.FactorScore {
	var score float64
	switch {
	case snap.DropPct >= 30:
		score = 2.0
	case snap.DropPct >= 20:
		score = 1.5
	case snap.DropPct >= 10:
		score = 1.0
	case snap.DropPct >= 5:
		score = 0.5
	}
	return factor("Drawdown", score, 0.20, fmt.Sprintf("-%.1f%%", snap.DropPct))
}

// scoreVolume rewards heavy selling volume relative to the prior 20 sessions.
// Weight: 0.10
func scoreVolume(snap *model.Snapshot) (model.FactorScore, bool) {
	if snap.VolumeRatio == nil {
		return model.FactorScore{}, false
	}
	ratio := *snap.VolumeRatio
	var score float64
	switch {
	case ratio >= 2:
		score = 1.0
	case ratio >= 1.5:
		score = 0.5
	case ratio < 0.5:
		score = -0.5
	}
	return factor("Volume", score, 0.10, fmt.Sprintf("x%.2f", ratio)), true
}
