package model

import "time"

// OHLCV represents a single daily candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Snapshot is the per-cycle price view of one instrument.
type Snapshot struct {
	Instrument string
	Price      float64
	WindowHigh float64
	DropPct    float64 // percent below WindowHigh, never negative when WindowHigh > 0
	Indicators
	FetchedAt time.Time
}
