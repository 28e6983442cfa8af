package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DipSentinel/internal/model"
)

func barsFromCloses(closes ...float64) []model.OHLCV {
	bars := make([]model.OHLCV, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = model.OHLCV{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return bars
}

func TestCalculateSMA(t *testing.T) {
	v, err := CalculateSMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)

	_, err = CalculateSMA([]float64{1, 2}, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = CalculateSMA([]float64{1, 2}, 0)
	assert.Error(t, err)
}

func TestCalculateSMA200NeedsFullHistory(t *testing.T) {
	closes := make([]float64, 199)
	for i := range closes {
		closes[i] = 10
	}
	_, err := CalculateSMA200(barsFromCloses(closes...))
	assert.ErrorIs(t, err, ErrInsufficientData)

	v, err := CalculateSMA200(barsFromCloses(append(closes, 10)...))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-9)
}

func TestCalculateRSI(t *testing.T) {
	t.Run("insufficient history is undefined", func(t *testing.T) {
		closes := make([]float64, 15)
		for i := range closes {
			closes[i] = float64(i + 1)
		}
		_, err := CalculateRSI(barsFromCloses(closes...), 14)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("monotonic rise is 100", func(t *testing.T) {
		closes := make([]float64, 16)
		for i := range closes {
			closes[i] = float64(i + 1)
		}
		v, err := CalculateRSI(barsFromCloses(closes...), 14)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, v, 1e-9)
	})

	t.Run("alternating moves stay mid range", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			if i%2 == 0 {
				closes[i] = 100
			} else {
				closes[i] = 101
			}
		}
		v, err := CalculateRSI(barsFromCloses(closes...), 14)
		require.NoError(t, err)
		assert.Greater(t, v, 30.0)
		assert.Less(t, v, 70.0)
	})
}

func TestWindowHigh(t *testing.T) {
	bars := barsFromCloses(200, 50, 60, 70)
	h, err := WindowHigh(bars, 3)
	require.NoError(t, err)
	assert.Equal(t, 70.0, h)

	h, err = WindowHigh(bars, 60)
	require.NoError(t, err)
	assert.Equal(t, 200.0, h)

	_, err = WindowHigh(nil, 60)
	assert.Error(t, err)
}

func TestDropPct(t *testing.T) {
	assert.InDelta(t, 10.0, DropPct(90, 100), 1e-9)
	assert.Equal(t, 0.0, DropPct(90, 0))
	assert.Equal(t, 0.0, DropPct(90, -5))
}

func TestVolumeRatio(t *testing.T) {
	bars := barsFromCloses(make([]float64, 21)...)
	bars[20].Volume = 300
	v, err := VolumeRatio(bars, 20)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-9)

	_, err = VolumeRatio(bars[:20], 20)
	assert.ErrorIs(t, err, ErrInsufficientData)

	for i := range bars {
		bars[i].Volume = 0
	}
	_, err = VolumeRatio(bars, 20)
	assert.Error(t, err)
}
