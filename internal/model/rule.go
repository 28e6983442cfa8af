package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountID identifies a subscriber (the Telegram chat id).
type AccountID int64

// AlertClass names an independently cooled-down kind of notification.
type AlertClass string

const (
	ClassBuy        AlertClass = "BUY"
	ClassTakeProfit AlertClass = "TAKE_PROFIT"
	ClassStopLoss   AlertClass = "STOP_LOSS"
	ClassDCA        AlertClass = "DCA"
)

// AllClasses lists every alert class in evaluation order.
var AllClasses = []AlertClass{ClassBuy, ClassTakeProfit, ClassStopLoss, ClassDCA}

// DCATier suggests Amount once the drawdown reaches DrawdownPct.
type DCATier struct {
	DrawdownPct float64         `json:"drawdown_pct"`
	Amount      decimal.Decimal `json:"amount"`
}

// RuleKey addresses one rule record.
type RuleKey struct {
	AccountID  AccountID
	Instrument string
}

func (k RuleKey) String() string {
	return fmt.Sprintf("%d:%s", k.AccountID, k.Instrument)
}

// RuleRecord is the full per-(account, instrument) configuration and firing state.
type RuleRecord struct {
	AccountID       AccountID
	Instrument      string
	BuyDropPct      *float64
	EntryPrice      *float64
	TakeProfitPct   *float64
	StopLossPct     *float64
	DCATiers        []DCATier
	LastFired       map[AlertClass]time.Time
	LastBuyDropSent *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key returns the record's store key.
func (r *RuleRecord) Key() RuleKey {
	return RuleKey{AccountID: r.AccountID, Instrument: r.Instrument}
}

// NormalizeInstrument uppercases and trims an instrument symbol.
func NormalizeInstrument(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Normalize brings a freshly loaded record to canonical form: instrument symbol,
// tier ordering and uniqueness, and an initialised cooldown table.
// Tiers with a non-positive drawdown are dropped. On duplicate drawdowns the later entry wins.
func (r *RuleRecord) Normalize() {
	r.Instrument = NormalizeInstrument(r.Instrument)
	r.DCATiers = NormalizeTiers(r.DCATiers)
	if r.LastFired == nil {
		r.LastFired = make(map[AlertClass]time.Time, len(AllClasses))
	}
	for class, at := range r.LastFired {
		if at.IsZero() {
			delete(r.LastFired, class)
		}
	}
}

// NormalizeTiers returns tiers sorted ascending by drawdown with duplicates collapsed.
func NormalizeTiers(tiers []DCATier) []DCATier {
	if len(tiers) == 0 {
		return nil
	}
	byKey := make(map[float64]DCATier, len(tiers))
	for _, t := range tiers {
		if t.DrawdownPct <= 0 {
			continue
		}
		byKey[t.DrawdownPct] = t
	}
	out := make([]DCATier, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DrawdownPct < out[j].DrawdownPct })
	return out
}

// Enabled reports whether any alert class can produce an intent for this record.
// DCA tiers alone are not enough: suggestions only accompany the BUY threshold.
func (r *RuleRecord) Enabled() bool {
	return r.BuyDropPct != nil || r.HasTakeProfit() || r.HasStopLoss()
}

// HasTakeProfit reports whether TP is fully configured.
func (r *RuleRecord) HasTakeProfit() bool {
	return r.EntryPrice != nil && r.TakeProfitPct != nil
}

// HasStopLoss reports whether SL is fully configured.
func (r *RuleRecord) HasStopLoss() bool {
	return r.EntryPrice != nil && r.StopLossPct != nil
}

// Clone returns a deep copy.
func (r RuleRecord) Clone() RuleRecord {
	out := r
	out.BuyDropPct = cloneFloat(r.BuyDropPct)
	out.EntryPrice = cloneFloat(r.EntryPrice)
	out.TakeProfitPct = cloneFloat(r.TakeProfitPct)
	out.StopLossPct = cloneFloat(r.StopLossPct)
	out.LastBuyDropSent = cloneFloat(r.LastBuyDropSent)
	if r.DCATiers != nil {
		out.DCATiers = append([]DCATier(nil), r.DCATiers...)
	}
	if r.LastFired != nil {
		out.LastFired = make(map[AlertClass]time.Time, len(r.LastFired))
		for k, v := range r.LastFired {
			out.LastFired[k] = v
		}
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
