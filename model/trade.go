package model

import "github.com/shopspring/decimal"

// Side is the aggressor side of a trade.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Trade is a single executed trade normalized from an exchange's wire
// format. Price and quantity are fixed-point decimals: binary floating
// point is never used in the normalized model, to avoid rounding drift
// across exchanges with different tick sizes.
type Trade struct {
	ID       string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     Side
}

func (Trade) payload() {}

// Valid reports whether the trade satisfies the normalized model's
// invariants (price > 0, quantity > 0).
func (t Trade) Valid() bool {
	return t.Price.IsPositive() && t.Quantity.IsPositive()
}
