package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/metrics"
	"DipSentinel/internal/model"
)

// ErrUnavailable means no usable price history was returned for an instrument.
var ErrUnavailable = errors.New("price data unavailable")

// Options tunes snapshot collection.
type Options struct {
	Window           int // bars scanned for the trailing high
	Lookback         int // bars fetched for plain snapshots
	ExtendedLookback int // bars fetched when extended fields are wanted
	FetchTimeout     time.Duration
	MaxConcurrency   int
	RatePerSecond    float64 // 0 disables pacing
}

// DefaultOptions returns a 60 bar window, 220 bar extended history, 20 s timeout and 8 workers.
func DefaultOptions() Options {
	return Options{
		Window:           60,
		Lookback:         60,
		ExtendedLookback: 220,
		FetchTimeout:     20 * time.Second,
		MaxConcurrency:   8,
	}
}

// Collector orchestrates data fetching and snapshot computation.
type Collector struct {
	Fetcher Fetcher
	opts    Options
	limiter *rate.Limiter
	Now     func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, opts Options) *Collector {
	defaults := DefaultOptions()
	if opts.Window <= 0 {
		opts.Window = defaults.Window
	}
	if opts.Lookback < opts.Window {
		opts.Lookback = opts.Window
	}
	if opts.ExtendedLookback < opts.Lookback {
		opts.ExtendedLookback = defaults.ExtendedLookback
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaults.FetchTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaults.MaxConcurrency
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Collector{
		Fetcher: fetcher,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		Now:     time.Now,
	}
}

// Snapshot fetches history for one instrument and computes its snapshot.
func (c *Collector) Snapshot(ctx context.Context, instrument string, extended bool) (*model.Snapshot, error) {
	lookback := c.opts.Lookback
	if extended {
		lookback = c.opts.ExtendedLookback
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	bars, err := c.Fetcher.FetchDailyBars(fetchCtx, instrument, lookback)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch daily bars for %s", instrument)
	}
	return BuildSnapshot(instrument, bars, c.opts.Window, c.Now())
}

// BuildSnapshot derives price, trailing high, drawdown and the optional indicators from bars.
func BuildSnapshot(instrument string, bars []model.OHLCV, window int, now time.Time) (*model.Snapshot, error) {
	if len(bars) == 0 {
		return nil, errors.Wrapf(ErrUnavailable, "no bars for %s", instrument)
	}
	high, err := calculator.WindowHigh(bars, window)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: %v", instrument, err)
	}
	price := bars[len(bars)-1].Close

	snap := &model.Snapshot{
		Instrument: instrument,
		Price:      price,
		WindowHigh: high,
		DropPct:    calculator.DropPct(price, high),
		FetchedAt:  now,
	}

	if v, err := calculator.CalculateSMA50(bars); err == nil {
		snap.SMA50 = model.Float(v)
	}
	if v, err := calculator.CalculateSMA200(bars); err == nil {
		snap.SMA200 = model.Float(v)
	}
	if v, err := calculator.CalculateRSI(bars, 14); err == nil {
		snap.RSI14 = model.Float(v)
	}
	if v, err := calculator.VolumeRatio(bars, 20); err == nil {
		snap.VolumeRatio = model.Float(v)
	}
	return snap, nil
}

type fetchResult struct {
	instrument string
	snapshot   *model.Snapshot
}

// CollectAll fetches one snapshot per distinct instrument on a bounded worker pool.
// The map value says whether extended fields are wanted. Instruments that fail or time out
// are absent from the result.
func (c *Collector) CollectAll(ctx context.Context, instruments map[string]bool) map[string]*model.Snapshot {
	p := pool.NewWithResults[fetchResult]().WithMaxGoroutines(c.opts.MaxConcurrency)
	for instrument, extended := range instruments {
		p.Go(func() fetchResult {
			snap, err := c.Snapshot(ctx, instrument, extended)
			if err != nil {
				result := "error"
				switch {
				case errors.Is(err, context.DeadlineExceeded):
					result = "timeout"
				case errors.Is(err, ErrUnavailable):
					result = "unavailable"
				}
				metrics.SnapshotFetches.WithLabelValues(result).Inc()
				log.WithError(err).WithFields(log.Fields{"instrument": instrument, "result": result}).Warn("snapshot skipped")
				return fetchResult{instrument: instrument}
			}
			metrics.SnapshotFetches.WithLabelValues("ok").Inc()
			return fetchResult{instrument: instrument, snapshot: snap}
		})
	}

	out := make(map[string]*model.Snapshot, len(instruments))
	for _, r := range p.Wait() {
		if r.snapshot != nil {
			out[r.instrument] = r.snapshot
		}
	}
	return out
}
