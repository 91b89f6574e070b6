// Package streambuilder is the thin consumer-facing entry point: collect
// desired subscriptions, then hand them to a supervisor.Supervisor and
// wrap the resulting per-exchange channels in a streammux.Streams.
package streambuilder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"cryptostream/model"
	"cryptostream/stream"
	"cryptostream/streammux"
	"cryptostream/supervisor"
)

// Builder accumulates a session's desired subscriptions before Init opens
// any connection. Not safe for concurrent use; build the full
// subscription set on one goroutine before calling Init.
type Builder struct {
	cfg  stream.Config
	subs []model.Subscription
	err  error
}

// New returns a Builder with default stream.Config tuning.
func New() *Builder {
	return &Builder{cfg: stream.DefaultConfig()}
}

// WithConfig overrides the default reconnect/backpressure tuning applied
// to every spawned ExchangeStream.
func (b *Builder) WithConfig(cfg stream.Config) *Builder {
	b.cfg = cfg
	return b
}

// Subscribe adds fully-formed Subscriptions, already tagged with their
// exchange.
func (b *Builder) Subscribe(subs ...model.Subscription) *Builder {
	b.subs = append(b.subs, subs...)
	return b
}

// SubscribeExchange adds SubscriptionSpecs for a single exchange,
// resolving each into a Subscription with that exchange id attached.
func (b *Builder) SubscribeExchange(ex model.ExchangeID, specs ...model.SubscriptionSpec) *Builder {
	for _, spec := range specs {
		inst := model.NewInstrument(spec.Base, spec.Quote, spec.InstrumentKind)
		b.subs = append(b.subs, model.Subscription{
			Exchange:       ex,
			Instrument:     inst,
			Kind:           spec.DataKind,
			CandleInterval: spec.CandleInterval,
		})
	}
	return b
}

// Init validates the accumulated subscription set, hands it to a
// Supervisor, and returns the multiplexed view once every connection
// group's handshake has completed (or failed).
func (b *Builder) Init(ctx context.Context) (*streammux.Streams, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.subs) == 0 {
		return nil, fmt.Errorf("streambuilder: no subscriptions")
	}
	if err := checkDuplicates(b.subs); err != nil {
		return nil, err
	}

	sv := supervisor.New(b.cfg, rate.Limit(10), 5)
	perExchange, err := sv.Init(ctx, b.subs)
	if err != nil {
		return nil, err
	}

	merged := make(map[model.ExchangeID]<-chan model.MarketEvent, len(perExchange))
	for ex, chans := range perExchange {
		merged[ex] = mergeExchangeChannels(ctx, chans)
	}
	return streammux.New(merged), nil
}

func checkDuplicates(subs []model.Subscription) error {
	seen := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		k := s.Key()
		if _, dup := seen[k]; dup {
			return fmt.Errorf("streambuilder: duplicate subscription %s", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// mergeExchangeChannels flattens the possibly-multiple connection-group
// channels for one exchange into the single channel streammux.Streams
// expects per exchange id.
func mergeExchangeChannels(ctx context.Context, chans []<-chan model.MarketEvent) <-chan model.MarketEvent {
	if len(chans) == 1 {
		return chans[0]
	}
	out := make(chan model.MarketEvent)
	done := make(chan struct{})
	remaining := len(chans)
	for _, ch := range chans {
		go func(ch <-chan model.MarketEvent) {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						select {
						case done <- struct{}{}:
						case <-ctx.Done():
						}
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}(ch)
	}
	go func() {
		for remaining > 0 {
			select {
			case <-done:
				remaining--
			case <-ctx.Done():
				close(out)
				return
			}
		}
		close(out)
	}()
	return out
}
