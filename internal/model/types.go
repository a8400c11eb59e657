package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the textual timestamp format accepted in source files.
const TimeLayout = "2006-01-02 15:04:05"

// -----------------------------------------------------------------------------
// Observations
// -----------------------------------------------------------------------------

// Observation is one time-stamped price/volume record.
type Observation struct {
	Timestamp time.Time                  // Observation time (UTC)
	Symbol    string                     // Instrument symbol, "" when the source has none
	Values    map[string]decimal.Decimal // Numeric columns (close, volume, ...)
}

// Key returns the identity of the observation in the store.
func (o Observation) Key() Key {
	return Key{Symbol: o.Symbol, Timestamp: o.Timestamp}
}

// Value returns the named numeric field and whether it is present.
func (o Observation) Value(column string) (decimal.Decimal, bool) {
	v, ok := o.Values[column]
	return v, ok
}

// Key identifies a stored observation.
type Key struct {
	Symbol    string
	Timestamp time.Time
}

// String renders the key as "SYMBOL@2006-01-02 15:04:05".
func (k Key) String() string {
	return k.Symbol + "@" + k.Timestamp.UTC().Format(TimeLayout)
}

// -----------------------------------------------------------------------------
// Watermark
// -----------------------------------------------------------------------------

// Watermark is the latest timestamp committed to the store.
// The zero value means the store holds no observations.
type Watermark struct {
	Time  time.Time
	Valid bool
}

// NewWatermark returns a valid watermark at t.
func NewWatermark(t time.Time) Watermark {
	return Watermark{Time: t.UTC(), Valid: true}
}

// Day returns the UTC calendar day of the watermark.
func (w Watermark) Day() time.Time {
	return DayOf(w.Time)
}

// Before reports whether w is strictly older than other.
// An empty watermark is older than any valid one.
func (w Watermark) Before(other Watermark) bool {
	if !other.Valid {
		return false
	}
	if !w.Valid {
		return true
	}
	return w.Time.Before(other.Time)
}

// Advance returns the later of w and t.
func (w Watermark) Advance(t time.Time) Watermark {
	if !w.Valid || t.After(w.Time) {
		return NewWatermark(t)
	}
	return w
}

func (w Watermark) String() string {
	if !w.Valid {
		return "empty"
	}
	return w.Time.UTC().Format(TimeLayout)
}

// DayOf truncates t to midnight of its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MaxTimestamp returns the watermark covering all observations.
func MaxTimestamp(obs []Observation) Watermark {
	var w Watermark
	for _, o := range obs {
		w = w.Advance(o.Timestamp)
	}
	return w
}
