package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Liquidation is a forced-liquidation trade an exchange publishes on its
// public feed for perpetual/futures markets.
type Liquidation struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

func (Liquidation) payload() {}
