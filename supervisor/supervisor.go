// Package supervisor batches desired subscriptions into per-connection
// groups, spawns one stream.ExchangeStream per group, and logs each
// stream's terminal outcome; whether a failed connection is retried or
// terminally Failed is decided inside stream.ExchangeStream.Run. It is the
// one place that knows about every exchange's Connector/Transformer pair
// at once; stream.ExchangeStream itself only ever sees its own batch.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"cryptostream/exchange"
	"cryptostream/logger"
	"cryptostream/model"
	"cryptostream/stream"
)

// group is one connection's worth of subscriptions for one exchange.
type group struct {
	exchangeID model.ExchangeID
	subs       []model.Subscription
}

// Supervisor owns every running ExchangeStream for a session.
type Supervisor struct {
	cfg     stream.Config
	log     *logger.Entry
	limiter *rate.Limiter

	mu      sync.Mutex
	streams []*stream.ExchangeStream
}

// New builds a Supervisor. limiterRate/limiterBurst pace outbound
// subscribe batches during Init so a large consumer subscription list
// doesn't open every connection in the same instant.
func New(cfg stream.Config, limiterRate rate.Limit, limiterBurst int) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		log:     logger.GetLogger().WithComponent("supervisor"),
		limiter: rate.NewLimiter(limiterRate, limiterBurst),
	}
}

// batch splits subs by exchange, then by MaxStreamsPerConnection, into
// connection groups. Order within an exchange is preserved so batches are
// deterministic across runs of the same subscription list.
func batch(subs []model.Subscription) (map[model.ExchangeID][]group, error) {
	byExchange := make(map[model.ExchangeID][]model.Subscription)
	for _, s := range subs {
		byExchange[s.Exchange] = append(byExchange[s.Exchange], s)
	}

	out := make(map[model.ExchangeID][]group)
	for ex, list := range byExchange {
		factory, err := exchange.Lookup(ex)
		if err != nil {
			return nil, err
		}
		max := factory.NewConnector().MaxStreamsPerConnection()
		if max <= 0 {
			max = len(list)
		}
		for i := 0; i < len(list); i += max {
			end := i + max
			if end > len(list) {
				end = len(list)
			}
			out[ex] = append(out[ex], group{exchangeID: ex, subs: list[i:end]})
		}
	}
	return out, nil
}

// Init batches subs, spawns one ExchangeStream per group, and performs
// every group's handshake synchronously, returning the first error
// encountered. On success every spawned stream's Run loop is already
// running in the background, driving its own reconnects from here on.
func (sv *Supervisor) Init(ctx context.Context, subs []model.Subscription) (map[model.ExchangeID][]<-chan model.MarketEvent, error) {
	groups, err := batch(subs)
	if err != nil {
		return nil, err
	}

	out := make(map[model.ExchangeID][]<-chan model.MarketEvent)
	for ex, gs := range groups {
		factory, err := exchange.Lookup(ex)
		if err != nil {
			return nil, err
		}
		for _, g := range gs {
			if err := sv.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			conn := factory.NewConnector()
			tr := factory.NewTransformer()
			es := stream.New(ex, g.subs, conn, tr, sv.cfg)

			if err := es.Init(ctx); err != nil {
				sv.log.WithError(err).WithFields(logger.Fields{"exchange": string(ex)}).Error("exchange stream init failed")
				return nil, fmt.Errorf("supervisor: init %s: %w", ex, err)
			}

			sv.mu.Lock()
			sv.streams = append(sv.streams, es)
			sv.mu.Unlock()

			out[ex] = append(out[ex], es.Events())
			go sv.drive(ctx, ex, es)
		}
	}
	return out, nil
}

// drive runs one ExchangeStream to completion, logging its terminal
// outcome. Reconnects happen inside Run itself; drive only observes the
// final Failed/Closed transition.
func (sv *Supervisor) drive(ctx context.Context, ex model.ExchangeID, es *stream.ExchangeStream) {
	if err := es.Run(ctx); err != nil {
		sv.log.WithError(err).WithFields(logger.Fields{"exchange": string(ex)}).Error("exchange stream failed terminally")
	}
}
