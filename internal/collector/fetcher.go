package collector

import (
	"context"

	"DipSentinel/internal/model"
)

// Fetcher defines the interface for fetching daily price history.
// Bars are returned oldest first.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error)
	Name() string
}
