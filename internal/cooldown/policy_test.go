package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"DipSentinel/internal/model"
)

func TestAdmitNeverFired(t *testing.T) {
	p := DefaultPolicy()
	rec := &model.RuleRecord{}
	for _, class := range model.AllClasses {
		assert.True(t, p.Admit(rec, class, time.Now(), 0).Allowed, class)
	}
}

func TestAdmitElapsedBoundary(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	rec := &model.RuleRecord{LastFired: map[model.AlertClass]time.Time{
		model.ClassTakeProfit: now.Add(-3 * time.Hour),
		model.ClassStopLoss:   now.Add(-3*time.Hour + time.Second),
	}}
	assert.True(t, p.Admit(rec, model.ClassTakeProfit, now, 0).Allowed)
	assert.False(t, p.Admit(rec, model.ClassStopLoss, now, 0).Allowed)
}

func TestAdmitBuyEscalation(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	rec := &model.RuleRecord{
		LastFired:       map[model.AlertClass]time.Time{model.ClassBuy: now.Add(-time.Hour)},
		LastBuyDropSent: model.Float(12.0),
	}

	tests := []struct {
		name      string
		drop      float64
		allowed   bool
		escalated bool
	}{
		{"one point deeper", 13.0, false, false},
		{"exactly the margin", 14.0, true, true},
		{"well past the margin", 20.0, true, true},
		{"recovered", 5.0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Admit(rec, model.ClassBuy, now, tt.drop)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.escalated, d.Escalated)
		})
	}
}

func TestEscalationDoesNotApplyToTakeProfit(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	rec := &model.RuleRecord{
		LastFired:       map[model.AlertClass]time.Time{model.ClassTakeProfit: now.Add(-time.Minute)},
		LastBuyDropSent: model.Float(1.0),
	}
	assert.False(t, p.Admit(rec, model.ClassTakeProfit, now, 50).Allowed)
}

func TestAdmitDCAOncePerWeek(t *testing.T) {
	p := DefaultPolicy()
	sunday := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	rec := &model.RuleRecord{LastFired: map[model.AlertClass]time.Time{model.ClassDCA: sunday}}

	assert.False(t, p.Admit(rec, model.ClassDCA, sunday.Add(30*time.Minute), 0).Allowed)
	assert.True(t, p.Admit(rec, model.ClassDCA, sunday.Add(time.Hour), 0).Allowed, "monday opens a new week")
}

func TestMarkInitialisesTable(t *testing.T) {
	rec := &model.RuleRecord{}
	now := time.Now()
	Mark(rec, model.ClassBuy, now)
	assert.Equal(t, now, rec.LastFired[model.ClassBuy])
}
