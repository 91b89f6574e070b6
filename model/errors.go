package model

import "errors"

// Init-time errors, returned synchronously from Builder.Init.
var (
	ErrTransport           = errors.New("transport: cannot reach exchange at startup")
	ErrSubscribeRejected   = errors.New("subscribe: exchange rejected subscription")
	ErrProtocolViolation   = errors.New("protocol: unexpected or malformed acknowledgement")
	ErrUnsupportedInstMix  = errors.New("connector: instrument batch cannot share one connection")
)

// Steady-state stream errors. Never raised to the consumer as a terminated
// stream unless every supervised connection for the exchange has reached a
// terminal Failed state.
var (
	ErrDisconnected = errors.New("stream: socket closed")
	ErrLiveness     = errors.New("stream: liveness deadline exceeded")
)

// Transform errors. Always non-fatal: the offending frame is dropped and a
// counter is incremented.
var (
	ErrParse              = errors.New("transform: malformed numeric field")
	ErrUnknownSubscription = errors.New("transform: no route for subscription id")
)

// ExchangeError is a non-fatal event payload for exchange-emitted error
// frames, unless Code is in that connector's declared fatal set, in which
// case the ExchangeStream transitions to Failed instead of emitting it.
type ExchangeError struct {
	Code    string
	Message string
}

func (ExchangeError) payload() {}

func (e ExchangeError) Error() string {
	return "exchange error " + e.Code + ": " + e.Message
}
