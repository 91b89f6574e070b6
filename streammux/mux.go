// Package streammux fans in one outbound channel per exchange into a
// single consumer-facing stream, fairly, without the bias or per-call
// allocation cost of reflect.Select.
package streammux

import (
	"context"
	"sync"

	"cryptostream/model"
)

// Keyed tags a merged event with the exchange it came from, so a JoinMap
// consumer never has to inspect MarketEvent.Exchange to route it.
type Keyed struct {
	Exchange model.ExchangeID
	Event    model.MarketEvent
}

// Streams is the read-only multiplexed view over every exchange's
// outbound channel, handed to the consumer by streambuilder.Builder.Init.
type Streams struct {
	mu       sync.RWMutex
	sources  map[model.ExchangeID]<-chan model.MarketEvent
}

// New builds a Streams view over the given per-exchange channels. Callers
// retain no reference to the channels after this call; Streams owns fan-in.
func New(sources map[model.ExchangeID]<-chan model.MarketEvent) *Streams {
	cp := make(map[model.ExchangeID]<-chan model.MarketEvent, len(sources))
	for k, v := range sources {
		cp[k] = v
	}
	return &Streams{sources: cp}
}

// Select returns the single-exchange channel directly, bypassing fan-in,
// for a consumer that only cares about one venue.
func (s *Streams) Select(ex model.ExchangeID) (<-chan model.MarketEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.sources[ex]
	return ch, ok
}

// JoinMap merges every source channel into one, preserving FIFO order
// within each exchange but making no ordering guarantee across exchanges.
// Each source is drained by its own forwarding goroutine directly into the
// shared output channel, so a quiet or slow exchange never blocks delivery
// from the others the way a single cursor looping over sources would; Go's
// own runtime arbitrates fairly among the goroutines simultaneously ready
// to send. The returned channel closes once every source has closed or
// ctx is done.
func (s *Streams) JoinMap(ctx context.Context) <-chan Keyed {
	s.mu.RLock()
	sources := make(map[model.ExchangeID]<-chan model.MarketEvent, len(s.sources))
	for ex, ch := range s.sources {
		sources[ex] = ch
	}
	s.mu.RUnlock()

	out := make(chan Keyed)
	var wg sync.WaitGroup
	wg.Add(len(sources))
	for ex, ch := range sources {
		go func(ex model.ExchangeID, ch <-chan model.MarketEvent) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- Keyed{Exchange: ex, Event: ev}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(ex, ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
