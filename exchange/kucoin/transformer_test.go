package kucoin

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptostream/model"
)

func installedTransformer(t *testing.T, sub model.Subscription, id model.SubscriptionID) *Transformer {
	t.Helper()
	tr := newTransformer()
	tr.InstallRoute(id, sub)
	return tr
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("invalid decimal literal %q: %v", s, err)
	}
	return d
}

func TestTransformTradeUsesNanosecondTimestamp(t *testing.T) {
	sub := model.Subscription{Exchange: model.Kucoin, Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.KindTrade}
	tr := installedTransformer(t, sub, "/market/match:BTC-USDT")

	frame := []byte(`{"type":"message","topic":"/market/match:BTC-USDT","data":{"price":"50000.1","size":"0.4","side":"sell","tradeId":"t1","time":"1700000000000000000"}}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	trade := events[0].Payload.(model.Trade)
	if trade.Side != model.Sell {
		t.Errorf("side = %s, want sell", trade.Side)
	}
	if !trade.Price.Equal(mustDecimal(t, "50000.1")) {
		t.Errorf("price = %s, want 50000.1", trade.Price)
	}
	wantTS := time.Unix(0, 1700000000000000000).UTC()
	if !events[0].ExchangeTS.Equal(wantTS) {
		t.Errorf("exchange ts = %v, want %v", events[0].ExchangeTS, wantTS)
	}
}

func TestTransformTicker(t *testing.T) {
	sub := model.Subscription{Exchange: model.Kucoin, Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.KindOrderBookL1}
	tr := installedTransformer(t, sub, "/market/ticker:BTC-USDT")

	frame := []byte(`{"type":"message","topic":"/market/ticker:BTC-USDT","data":{"bestAsk":"100.5","bestAskSize":"2","bestBid":"99.5","bestBidSize":"1"}}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	l1 := events[0].Payload.(model.OrderBookL1)
	if !l1.BestBid.Price.Equal(mustDecimal(t, "99.5")) || !l1.BestAsk.Price.Equal(mustDecimal(t, "100.5")) {
		t.Errorf("unexpected L1 levels: %+v", l1)
	}
}

func TestTransformLevel2(t *testing.T) {
	sub := model.Subscription{Exchange: model.Kucoin, Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.OrderBookL2Delta}
	tr := installedTransformer(t, sub, "/market/level2:BTC-USDT")

	frame := []byte(`{"type":"message","topic":"/market/level2:BTC-USDT","data":{"changes":{"asks":[["101","2","1"]],"bids":[["99","1","1"]]},"sequenceEnd":77}}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	delta := events[0].Payload.(model.OrderBookDelta)
	if delta.Sequence != 77 {
		t.Errorf("sequence = %d, want 77", delta.Sequence)
	}
	if len(delta.Bids) != 1 || len(delta.Asks) != 1 {
		t.Fatalf("unexpected levels: %+v", delta)
	}
}

func TestTransformCandleIsAlwaysClosed(t *testing.T) {
	sub := model.Subscription{
		Exchange: model.Kucoin, Instrument: model.NewInstrument("BTC", "USDT", model.Spot),
		Kind: model.KindCandle, CandleInterval: model.Interval1m,
	}
	tr := installedTransformer(t, sub, "/market/candles:BTC-USDT_1min")

	frame := []byte(`{"type":"message","topic":"/market/candles:BTC-USDT_1min","data":{"candles":["1700000000","100","110","120","90","42","4200"]}}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	candle := events[0].Payload.(model.Candle)
	if !candle.Closed {
		t.Error("kucoin candle events are always reported closed")
	}
	if !candle.Valid() {
		t.Errorf("candle fails its own invariants: %+v", candle)
	}
}

func TestTransformUnknownSubscription(t *testing.T) {
	tr := newTransformer()
	frame := []byte(`{"type":"message","topic":"/market/match:ZZZ-USDT","data":{}}`)
	_, err := tr.Transform(frame, time.Now())
	if !errors.Is(err, model.ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
	if !strings.Contains(err.Error(), "canonical") {
		t.Errorf("expected the error to include a canonical-symbol hint, got %q", err.Error())
	}
}

func TestTransformUnknownSubscriptionNormalizesCandleSymbol(t *testing.T) {
	tr := newTransformer()
	frame := []byte(`{"type":"message","topic":"/market/candles:XBT-USDTM_1min","data":{}}`)
	_, err := tr.Transform(frame, time.Now())
	if !errors.Is(err, model.ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
	if !strings.Contains(err.Error(), "canonical BTCUSDT") {
		t.Errorf("expected canonical BTCUSDT in error, got %q", err.Error())
	}
}

func TestTransformNonMessageTypeIsIgnored(t *testing.T) {
	tr := newTransformer()
	events, err := tr.Transform([]byte(`{"type":"ack","id":"1"}`), time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if events != nil {
		t.Errorf("expected no events for a non-message type, got %+v", events)
	}
}
