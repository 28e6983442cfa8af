package store

import (
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"DipSentinel/internal/model"
)

func encodeTiers(tiers []model.DCATier) (string, error) {
	if len(tiers) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tiers)
	if err != nil {
		return "", errors.Wrap(err, "encode dca tiers")
	}
	return string(data), nil
}

func decodeTiers(raw []byte) ([]model.DCATier, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tiers []model.DCATier
	if err := json.Unmarshal(raw, &tiers); err != nil {
		return nil, errors.Wrap(err, "decode dca tiers")
	}
	return tiers, nil
}

func decodeMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "decode amount %q", s)
	}
	return d, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixTime(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(n.Int64, 0).UTC()
}

func setFired(rec *model.RuleRecord, class model.AlertClass, at time.Time) {
	if at.IsZero() {
		return
	}
	if rec.LastFired == nil {
		rec.LastFired = make(map[model.AlertClass]time.Time, len(model.AllClasses))
	}
	rec.LastFired[class] = at
}
