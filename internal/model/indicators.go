package model

// Indicators holds the optional extended fields of a snapshot.
// A nil pointer means the value could not be computed from the available history.
type Indicators struct {
	SMA50       *float64
	SMA200      *float64
	RSI14       *float64
	VolumeRatio *float64
}

// HasAny reports whether at least one extended field is defined.
func (i Indicators) HasAny() bool {
	return i.SMA50 != nil || i.SMA200 != nil || i.RSI14 != nil || i.VolumeRatio != nil
}
