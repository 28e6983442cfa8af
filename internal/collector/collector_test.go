package collector

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/model"
)

func bars(closes ...float64) []model.OHLCV {
	out := make([]model.OHLCV, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = model.OHLCV{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func TestBuildSnapshot(t *testing.T) {
	snap, err := BuildSnapshot("SPY", bars(100, 95, 90), 60, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 90.0, snap.Price)
	assert.Equal(t, 100.0, snap.WindowHigh)
	assert.InDelta(t, 10.0, snap.DropPct, 1e-9)
	assert.Nil(t, snap.RSI14, "three bars cannot define RSI")
	assert.Nil(t, snap.SMA50)
	assert.Nil(t, snap.VolumeRatio)
}

func TestBuildSnapshotWindowIgnoresOldHighs(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 50
	}
	closes[0] = 500
	snap, err := BuildSnapshot("SPY", bars(closes...), 60, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 50.0, snap.WindowHigh)
	assert.Equal(t, 0.0, snap.DropPct)
	assert.NotNil(t, snap.SMA50)
	assert.NotNil(t, snap.RSI14)
	assert.NotNil(t, snap.VolumeRatio)
	assert.Nil(t, snap.SMA200)
}

func TestBuildSnapshotEmptyIsUnavailable(t *testing.T) {
	_, err := BuildSnapshot("SPY", nil, 60, time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCollectAllFetchesEachInstrumentOnce(t *testing.T) {
	f := &MockFetcher{
		Price: 100,
		Bars:  map[string][]model.OHLCV{"EMPTY": {}},
		Errors: map[string]error{
			"BROKEN": errors.New("boom"),
		},
	}
	c := NewCollector(f, Options{MaxConcurrency: 2})

	got := c.CollectAll(context.Background(), map[string]bool{
		"SPY": false, "QQQ": true, "BROKEN": false, "EMPTY": false,
	})
	assert.Len(t, got, 2)
	assert.Contains(t, got, "SPY")
	assert.Contains(t, got, "QQQ")
	for _, sym := range []string{"SPY", "QQQ", "BROKEN", "EMPTY"} {
		assert.Equal(t, 1, f.Calls(sym), sym)
	}
}

func TestCollectAllTimeoutMarksUnavailable(t *testing.T) {
	f := &MockFetcher{Price: 100, Delay: time.Second}
	c := NewCollector(f, Options{FetchTimeout: 20 * time.Millisecond})

	start := time.Now()
	got := c.CollectAll(context.Background(), map[string]bool{"SLOW": false})
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSnapshotUsesExtendedLookback(t *testing.T) {
	f := &MockFetcher{Price: 100}
	c := NewCollector(f, Options{})

	snap, err := c.Snapshot(context.Background(), "SPY", true)
	require.NoError(t, err)
	assert.NotNil(t, snap.SMA200, "220 generated bars define SMA200")

	snap, err = c.Snapshot(context.Background(), "SPY", false)
	require.NoError(t, err)
	assert.Nil(t, snap.SMA200)
}
