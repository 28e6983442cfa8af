package calculator

import (
	"github.com/pkg/errors"

	"DipSentinel/internal/model"
)

// CalculateRSI computes the Wilder-smoothed RSI over the given period.
// It needs period+2 closes; shorter histories return ErrInsufficientData.
func CalculateRSI(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period+2 {
		return 0, errors.Wrapf(ErrInsufficientData, "rsi(%d) over %d bars", period, len(bars))
	}

	gains, losses := priceMoves(extractCloses(bars))
	avgGain := wilderAverage(gains, period)
	avgLoss := wilderAverage(losses, period)

	if avgLoss == 0 {
		return 100, nil
	}
	return 100 - 100/(1+avgGain/avgLoss), nil
}

// priceMoves splits close-to-close changes into non-negative gains and losses.
func priceMoves(closes []float64) (gains, losses []float64) {
	gains = make([]float64, 0, len(closes)-1)
	losses = make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gains = append(gains, max(d, 0))
		losses = append(losses, max(-d, 0))
	}
	return gains, losses
}

// wilderAverage seeds with the mean of the first period values, then smooths the rest.
func wilderAverage(values []float64, period int) float64 {
	avg := 0.0
	for _, v := range values[:period] {
		avg += v
	}
	avg /= float64(period)
	p := float64(period)
	for _, v := range values[period:] {
		avg = (avg*(p-1) + v) / p
	}
	return avg
}
