package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/budget"
	"DipSentinel/internal/lock"
	"DipSentinel/internal/model"
	"DipSentinel/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	locks := lock.NewKeyed()
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	ledger := budget.NewLedger(s, locks)
	ledger.Now = func() time.Time { return now }
	svc := New(s, s, ledger, locks)
	svc.Now = func() time.Time { return now }
	return svc, s
}

func TestUpsertRuleCreatesAndPatches(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	rec, err := svc.UpsertRule(ctx, 1, " spy ", RulePatch{BuyDropPct: model.Float(10)})
	require.NoError(t, err)
	assert.Equal(t, "SPY", rec.Instrument)
	assert.False(t, rec.CreatedAt.IsZero())

	tiers := []model.DCATier{
		{DrawdownPct: 20, Amount: decimal.NewFromInt(40)},
		{DrawdownPct: 10, Amount: decimal.NewFromInt(15)},
	}
	rec, err = svc.UpsertRule(ctx, 1, "SPY", RulePatch{EntryPrice: model.Float(100), TakeProfitPct: model.Float(12), DCATiers: &tiers})
	require.NoError(t, err)
	assert.Equal(t, 10.0, *rec.BuyDropPct, "untouched fields survive a patch")
	assert.Equal(t, 100.0, *rec.EntryPrice)
	require.Len(t, rec.DCATiers, 2)
	assert.Equal(t, 10.0, rec.DCATiers[0].DrawdownPct)

	rec, err = svc.UpsertRule(ctx, 1, "SPY", RulePatch{ClearBuy: true})
	require.NoError(t, err)
	assert.Nil(t, rec.BuyDropPct)

	got, err := svc.GetRule(ctx, 1, "spy")
	require.NoError(t, err)
	assert.Nil(t, got.BuyDropPct)
	assert.True(t, got.HasTakeProfit())
}

func TestUpsertRuleRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)

	badTiers := []model.DCATier{{DrawdownPct: 10, Amount: decimal.Zero}}
	cases := []struct {
		name       string
		instrument string
		patch      RulePatch
	}{
		{"empty instrument", "  ", RulePatch{BuyDropPct: model.Float(10)}},
		{"zero threshold", "SPY", RulePatch{BuyDropPct: model.Float(0)}},
		{"threshold above 100", "SPY", RulePatch{BuyDropPct: model.Float(101)}},
		{"negative entry", "SPY", RulePatch{EntryPrice: model.Float(-1)}},
		{"zero take profit", "SPY", RulePatch{TakeProfitPct: model.Float(0)}},
		{"zero tier amount", "SPY", RulePatch{DCATiers: &badTiers}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertRule(ctx, 1, tc.instrument, tc.patch)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	all, err := s.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "invalid input is never persisted")
}

func TestBoundaryThresholdAccepted(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.UpsertRule(context.Background(), 1, "SPY", RulePatch{BuyDropPct: model.Float(100)})
	assert.NoError(t, err)
}

func TestDeleteAndListRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for _, sym := range []string{"QQQ", "SPY"} {
		_, err := svc.UpsertRule(ctx, 1, sym, RulePatch{BuyDropPct: model.Float(5)})
		require.NoError(t, err)
	}
	list, err := svc.ListRules(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.DeleteRule(ctx, 1, "qqq"))
	assert.ErrorIs(t, svc.DeleteRule(ctx, 1, "QQQ"), store.ErrNotFound)

	_, err = svc.GetRule(ctx, 1, "QQQ")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBudgetOperations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, ok, err := svc.GetBudget(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.SetBudget(ctx, 5, decimal.NewFromInt(80), decimal.NewFromInt(40))
	require.NoError(t, err)
	_, err = svc.ConfirmSpend(ctx, 5, model.CategoryDip, decimal.NewFromInt(15))
	require.NoError(t, err)

	st, ok, err := svc.GetBudget(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.DipRemaining().Equal(decimal.NewFromInt(25)))
}

func TestPlanSummary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.SetBudget(ctx, 3, decimal.NewFromInt(60), decimal.NewFromInt(20))
	require.NoError(t, err)

	sum, err := svc.SetPlan(ctx, 3, []model.PlanEntry{
		{Instrument: "qqq", Amount: decimal.NewFromInt(30)},
		{Instrument: "SCHD", Amount: decimal.NewFromInt(20)},
		{Instrument: "QQQ", Amount: decimal.NewFromInt(20)},
	})
	require.NoError(t, err)
	require.Len(t, sum.Entries, 2)
	assert.Equal(t, "QQQ", sum.Entries[0].Instrument)
	assert.True(t, sum.Entries[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.True(t, sum.Total.Equal(decimal.NewFromInt(70)))
	assert.True(t, sum.OverBudget)

	_, err = svc.SetPlan(ctx, 3, []model.PlanEntry{{Instrument: "SPY", Amount: decimal.NewFromInt(-5)}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	accounts, err := svc.PlanAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.AccountID{3}, accounts)
}

func TestPlanWithoutBudgetIsNeverOverBudget(t *testing.T) {
	svc, _ := newTestService(t)
	sum, err := svc.SetPlan(context.Background(), 4, []model.PlanEntry{{Instrument: "SPY", Amount: decimal.NewFromInt(500)}})
	require.NoError(t, err)
	assert.False(t, sum.HasBudget)
	assert.False(t, sum.OverBudget)
}

func TestStaticEntitlements(t *testing.T) {
	e := NewStaticEntitlements([]int64{7})
	assert.True(t, e.IsEntitled(7))
	assert.False(t, e.IsEntitled(8))
}
