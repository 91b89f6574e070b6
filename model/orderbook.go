package model

import "github.com/shopspring/decimal"

// Level is a single (price, quantity) order-book entry.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBookDelta is an incremental order-book update. Sequence is the
// exchange-supplied sequence number, copied from the frame where the wire
// carries one; transformers do not check it for gaps or reordering.
type OrderBookDelta struct {
	Sequence uint64
	Bids     []Level
	Asks     []Level
}

func (OrderBookDelta) payload() {}

// OrderBookL1 is the best-bid/best-ask snapshot some exchanges publish as a
// standalone ticker-style stream distinct from full L2 deltas.
type OrderBookL1 struct {
	BestBid Level
	BestAsk Level
}

func (OrderBookL1) payload() {}
