package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an OHLCV bar. Closed is false until the exchange marks the
// period as finished (or, when the exchange does not distinguish
// intra-period updates from closes, it is left false permanently and a
// downstream closer is expected to derive closure from the clock).
type Candle struct {
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	TradeCount int64
	StartTime  time.Time
	EndTime    time.Time
	Closed     bool
}

func (Candle) payload() {}

// Valid reports whether the candle satisfies low <= {open,close} <= high
// and end > start.
func (c Candle) Valid() bool {
	if c.EndTime.Before(c.StartTime) || c.EndTime.Equal(c.StartTime) {
		return false
	}
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		return false
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
		return false
	}
	return true
}
