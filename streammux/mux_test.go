package streammux

import (
	"context"
	"testing"
	"time"

	"cryptostream/model"
)

func TestSelectReturnsTheNamedExchangeChannel(t *testing.T) {
	binanceCh := make(chan model.MarketEvent, 1)
	s := New(map[model.ExchangeID]<-chan model.MarketEvent{model.BinanceSpot: binanceCh})

	ch, ok := s.Select(model.BinanceSpot)
	if !ok {
		t.Fatal("expected BinanceSpot to be present")
	}
	binanceCh <- model.MarketEvent{Exchange: model.BinanceSpot}
	select {
	case ev := <-ch:
		if ev.Exchange != model.BinanceSpot {
			t.Errorf("got exchange %s, want %s", ev.Exchange, model.BinanceSpot)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out reading from selected channel")
	}

	if _, ok := s.Select(model.Kraken); ok {
		t.Fatal("expected Kraken to be absent")
	}
}

func TestJoinMapMergesEveryExchange(t *testing.T) {
	binanceCh := make(chan model.MarketEvent, 4)
	krakenCh := make(chan model.MarketEvent, 4)
	s := New(map[model.ExchangeID]<-chan model.MarketEvent{
		model.BinanceSpot: binanceCh,
		model.Kraken:       krakenCh,
	})

	for i := 0; i < 3; i++ {
		binanceCh <- model.MarketEvent{Exchange: model.BinanceSpot}
	}
	for i := 0; i < 2; i++ {
		krakenCh <- model.MarketEvent{Exchange: model.Kraken}
	}
	close(binanceCh)
	close(krakenCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counts := map[model.ExchangeID]int{}
	deadline := time.After(2 * time.Second)
	for merged := range s.JoinMap(ctx) {
		counts[merged.Exchange]++
		select {
		case <-deadline:
			t.Fatal("timed out draining JoinMap")
		default:
		}
	}
	if counts[model.BinanceSpot] != 3 || counts[model.Kraken] != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

// TestJoinMapDoesNotStarveAQuietSourceBehindABusyOne guards against the
// single-cursor fan-in design: one source producing continuously must never
// prevent a second, quiet source's event from being delivered.
func TestJoinMapDoesNotStarveAQuietSourceBehindABusyOne(t *testing.T) {
	busy := make(chan model.MarketEvent)
	quiet := make(chan model.MarketEvent)
	s := New(map[model.ExchangeID]<-chan model.MarketEvent{
		model.BinanceSpot: busy,
		model.Kraken:       quiet,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	merged := s.JoinMap(ctx)

	stopBusy := make(chan struct{})
	go func() {
		for {
			select {
			case busy <- model.MarketEvent{Exchange: model.BinanceSpot}:
			case <-stopBusy:
				return
			}
		}
	}()
	defer close(stopBusy)

	go func() {
		quiet <- model.MarketEvent{Exchange: model.Kraken}
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-merged:
			if ev.Exchange == model.Kraken {
				return
			}
		case <-deadline:
			t.Fatal("quiet source's event was starved behind the busy source")
		}
	}
}

func TestJoinMapClosesOnContextCancel(t *testing.T) {
	blocked := make(chan model.MarketEvent)
	s := New(map[model.ExchangeID]<-chan model.MarketEvent{model.Okx: blocked})

	ctx, cancel := context.WithCancel(context.Background())
	merged := s.JoinMap(ctx)
	cancel()

	select {
	case _, ok := <-merged:
		if ok {
			t.Fatal("expected merged channel to close, not deliver an event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for JoinMap to close after cancel")
	}
}
