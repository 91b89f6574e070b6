package model

import "time"

// Payload is the closed set of normalized payload types a MarketEvent may
// carry. The marker method keeps the set closed to this package.
type Payload interface {
	payload()
}

// MarketEvent is the normalized envelope delivered to consumers: exchange,
// instrument, and a typed payload, stamped with both the time the frame
// arrived at the ExchangeStream and (optionally) the exchange's own
// timestamp. received_at is intentionally stamped at the socket boundary,
// not at transform time, so transform latency never inflates it.
type MarketEvent struct {
	Exchange    ExchangeID
	Instrument  Instrument
	ReceivedAt  time.Time
	ExchangeTS  time.Time // zero value if the exchange did not supply one
	Payload     Payload
}

// ConnectionID identifies one generation of one exchange's connection.
// Generation increments on every reconnect; it is never reused.
type ConnectionID struct {
	Exchange   ExchangeID
	Generation uint64
}

func (c ConnectionID) Next() ConnectionID {
	return ConnectionID{Exchange: c.Exchange, Generation: c.Generation + 1}
}

// Reconnected is an opt-in sentinel event surfaced through the normal
// MarketEvent stream so a consumer can observe a generation gap without
// the engine terminating the stream.
type Reconnected struct {
	Connection  ConnectionID
	DroppedSubs []Subscription
}

func (Reconnected) payload() {}
