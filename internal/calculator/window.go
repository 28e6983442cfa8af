package calculator

import (
	"math"

	"github.com/pkg/errors"

	"DipSentinel/internal/model"
)

// WindowHigh returns the highest bar high over the most recent window bars.
func WindowHigh(dailyBars []model.OHLCV, window int) (float64, error) {
	if len(dailyBars) == 0 {
		return 0, errors.New("no daily bars provided")
	}
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	n := len(dailyBars)
	start := n - window
	if start < 0 {
		start = 0
	}
	high := math.Inf(-1)
	for i := start; i < n; i++ {
		if dailyBars[i].High > high {
			high = dailyBars[i].High
		}
	}
	return high, nil
}

// DropPct returns how far price sits below high, in percent. Zero when high is not positive.
func DropPct(price, high float64) float64 {
	if high <= 0 {
		return 0
	}
	return (high - price) / high * 100
}

// VolumeRatio divides the last bar's volume by the mean volume of the lookback bars before it.
func VolumeRatio(dailyBars []model.OHLCV, lookback int) (float64, error) {
	if lookback <= 0 {
		return 0, errors.New("lookback must be positive")
	}
	n := len(dailyBars)
	if n < lookback+1 {
		return 0, errors.Wrapf(ErrInsufficientData, "volume ratio(%d) over %d bars", lookback, n)
	}
	sum := 0.0
	for i := n - 1 - lookback; i < n-1; i++ {
		sum += dailyBars[i].Volume
	}
	mean := sum / float64(lookback)
	if mean == 0 {
		return 0, errors.New("zero mean volume")
	}
	return dailyBars[n-1].Volume / mean, nil
}
