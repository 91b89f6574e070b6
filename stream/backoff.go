package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackoff builds the exponential-with-jitter policy for
// Reconnect delays: base doubling up to cap, ±20% jitter via
// RandomizationFactor; Run resets it after a stable Active period. Never
// gives up on its own; ExchangeStream.Run moves to Failed only on a fatal
// error, never after a number of failed retries.
func newReconnectBackoff(baseMS, capMS int) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(baseMS) * time.Millisecond
	b.MaxInterval = time.Duration(capMS) * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0 // never stop retrying on its own
	return b
}
