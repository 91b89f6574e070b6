package metrics

import "testing"

func TestIncrementersNoPanicBeforeInit(t *testing.T) {
	// Counters are nil until Init registers them; every Inc* must tolerate
	// that instead of panicking, so calling them from a stream that never
	// enabled metrics is harmless.
	IncDroppedFrame("binance_spot")
	IncUnknownSubscription("binance_spot")
	IncParseError("binance_spot")
	IncReconnect("binance_spot")
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	IncDroppedFrame("kraken")
	IncUnknownSubscription("kraken")
	IncParseError("kraken")
	IncReconnect("kraken")
}
