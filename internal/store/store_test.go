package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{"memory": NewMemoryStore()}

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	stores["sqlite"] = sqliteStore

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		pg, err := NewPostgresStore(context.Background(), dsn)
		require.NoError(t, err)
		stores["postgres"] = pg
	}

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func sampleRule(now time.Time) model.RuleRecord {
	return model.RuleRecord{
		AccountID:     42,
		Instrument:    "SPY",
		BuyDropPct:    model.Float(10),
		EntryPrice:    model.Float(100),
		TakeProfitPct: model.Float(12),
		DCATiers: []model.DCATier{
			{DrawdownPct: 15, Amount: decimal.NewFromInt(25)},
			{DrawdownPct: 10, Amount: decimal.NewFromInt(15)},
		},
		LastFired:       map[model.AlertClass]time.Time{model.ClassBuy: now},
		LastBuyDropSent: model.Float(11.5),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestRuleRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1710000000, 0).UTC()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := sampleRule(now)
			require.NoError(t, s.SaveRule(ctx, rec))

			got, err := s.GetRule(ctx, rec.Key())
			require.NoError(t, err)
			assert.Equal(t, "SPY", got.Instrument)
			assert.Equal(t, 10.0, *got.BuyDropPct)
			assert.Nil(t, got.StopLossPct)
			require.Len(t, got.DCATiers, 2)
			assert.Equal(t, 10.0, got.DCATiers[0].DrawdownPct, "tiers load sorted")
			assert.True(t, got.DCATiers[1].Amount.Equal(decimal.NewFromInt(25)))
			assert.True(t, now.Equal(got.LastFired[model.ClassBuy]))
			_, fired := got.LastFired[model.ClassTakeProfit]
			assert.False(t, fired)
			assert.Equal(t, 11.5, *got.LastBuyDropSent)

			rec.StopLossPct = model.Float(5)
			rec.LastFired[model.ClassStopLoss] = now.Add(time.Hour)
			require.NoError(t, s.SaveRule(ctx, rec))
			got, err = s.GetRule(ctx, rec.Key())
			require.NoError(t, err)
			assert.Equal(t, 5.0, *got.StopLossPct)
			assert.True(t, now.Add(time.Hour).Equal(got.LastFired[model.ClassStopLoss]))

			other := sampleRule(now)
			other.Instrument = "QQQ"
			require.NoError(t, s.SaveRule(ctx, other))
			list, err := s.ListRules(ctx, 42)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "QQQ", list[0].Instrument)

			all, err := s.LoadRules(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			require.NoError(t, s.DeleteRule(ctx, other.Key()))
			_, err = s.GetRule(ctx, other.Key())
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.DeleteRule(ctx, other.Key()), ErrNotFound)
		})
	}
}

func TestBudgetRoundTrip(t *testing.T) {
	ctx := context.Background()
	week := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetBudget(ctx, 7)
			assert.ErrorIs(t, err, ErrNotFound)

			st := model.BudgetState{
				AccountID:  7,
				WeekStart:  week,
				PlanSpent:  decimal.RequireFromString("12.50"),
				DipSpent:   decimal.Zero,
				PlanBudget: decimal.NewFromInt(100),
				DipBudget:  decimal.NewFromInt(50),
				UpdatedAt:  week,
			}
			require.NoError(t, s.SaveBudget(ctx, st))

			got, err := s.GetBudget(ctx, 7)
			require.NoError(t, err)
			assert.True(t, week.Equal(got.WeekStart))
			assert.True(t, got.PlanSpent.Equal(decimal.RequireFromString("12.5")))
			assert.True(t, got.DipBudget.Equal(decimal.NewFromInt(50)))

			all, err := s.LoadBudgets(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestPlanReplace(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			entries := []model.PlanEntry{
				{Instrument: "VOO", Amount: decimal.NewFromInt(50)},
				{Instrument: "QQQ", Amount: decimal.NewFromInt(30)},
			}
			require.NoError(t, s.ReplacePlan(ctx, 9, entries))
			require.NoError(t, s.ReplacePlan(ctx, 9, entries[:1]))

			got, err := s.GetPlan(ctx, 9)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "VOO", got[0].Instrument)

			accounts, err := s.PlanAccounts(ctx)
			require.NoError(t, err)
			assert.Equal(t, []model.AccountID{9}, accounts)
		})
	}
}

func TestRecordIntent(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.RecordIntent(ctx, model.NotificationIntent{
				ID:         uuid.NewString(),
				AccountID:  1,
				Instrument: "SPY",
				Class:      model.ClassBuy,
				Price:      90,
				DropPct:    10,
				DCA:        &model.DCASuggestion{Amount: decimal.NewFromInt(15)},
				CreatedAt:  time.Now(),
			})
			assert.NoError(t, err)
		})
	}
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := sampleRule(time.Now())
	require.NoError(t, s.SaveRule(ctx, rec))

	rec.LastFired[model.ClassDCA] = time.Now()
	*rec.BuyDropPct = 99

	got, err := s.GetRule(ctx, rec.Key())
	require.NoError(t, err)
	assert.Equal(t, 10.0, *got.BuyDropPct)
	_, fired := got.LastFired[model.ClassDCA]
	assert.False(t, fired)
}
