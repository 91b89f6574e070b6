package binance

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptostream/model"
)

func installedTransformer(t *testing.T, sub model.Subscription, id model.SubscriptionID) *Transformer {
	t.Helper()
	tr := newTransformer(model.BinanceSpot)
	tr.InstallRoute(id, sub)
	return tr
}

func TestTransformTrade(t *testing.T) {
	sub := model.Subscription{Exchange: model.BinanceSpot, Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.KindTrade}
	tr := installedTransformer(t, sub, "btcusdt@trade")

	frame := []byte(`{"e":"trade","s":"BTCUSDT","t":12345,"p":"50000.10","q":"0.5","T":1700000000000,"m":false}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	trade, ok := events[0].Payload.(model.Trade)
	if !ok {
		t.Fatalf("expected Trade payload, got %T", events[0].Payload)
	}
	if trade.ID != "12345" {
		t.Errorf("trade id = %q, want 12345", trade.ID)
	}
	if !trade.Price.Equal(mustDecimal(t, "50000.10")) {
		t.Errorf("price = %s, want 50000.10", trade.Price)
	}
	if trade.Side != model.Buy {
		t.Errorf("side = %s, want buy (m=false means buyer is taker)", trade.Side)
	}
}

func TestTransformTradeUnknownSubscription(t *testing.T) {
	tr := newTransformer(model.BinanceSpot)
	frame := []byte(`{"e":"trade","s":"BTCUSDT","t":1,"p":"1","q":"1","T":1,"m":false}`)
	_, err := tr.Transform(frame, time.Now())
	if !errors.Is(err, model.ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
}

func TestTransformKlineResolvesIntervalSuffix(t *testing.T) {
	sub := model.Subscription{
		Exchange: model.BinanceSpot, Instrument: model.NewInstrument("BTC", "USDT", model.Spot),
		Kind: model.KindCandle, CandleInterval: model.Interval5m,
	}
	tr := installedTransformer(t, sub, "btcusdt@kline_5m")

	frame := []byte(`{"e":"kline","k":{"t":1000,"T":2000,"s":"BTCUSDT","o":"100","c":"110","h":"120","l":"90","v":"42","n":7,"x":true}}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	candle := events[0].Payload.(model.Candle)
	if !candle.Closed {
		t.Error("expected Closed=true")
	}
	if candle.TradeCount != 7 {
		t.Errorf("trade count = %d, want 7", candle.TradeCount)
	}
	if !candle.Valid() {
		t.Errorf("candle fails its own invariants: %+v", candle)
	}
}

func TestTransformBookTicker(t *testing.T) {
	sub := model.Subscription{Exchange: model.BinanceSpot, Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.KindOrderBookL1}
	tr := installedTransformer(t, sub, "btcusdt@bookTicker")

	frame := []byte(`{"s":"BTCUSDT","b":"99.5","B":"1.0","a":"100.5","A":"2.0"}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	l1 := events[0].Payload.(model.OrderBookL1)
	if !l1.BestBid.Price.Equal(mustDecimal(t, "99.5")) || !l1.BestAsk.Price.Equal(mustDecimal(t, "100.5")) {
		t.Errorf("unexpected L1 levels: %+v", l1)
	}
}

func TestTransformDepth(t *testing.T) {
	sub := model.Subscription{Exchange: model.BinanceSpot, Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.OrderBookL2Delta}
	tr := installedTransformer(t, sub, "btcusdt@depth@100ms")

	frame := []byte(`{"e":"depthUpdate","s":"BTCUSDT","u":555,"b":[["99","1"]],"a":[["101","2"]]}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	delta := events[0].Payload.(model.OrderBookDelta)
	if delta.Sequence != 555 {
		t.Errorf("sequence = %d, want 555", delta.Sequence)
	}
	if len(delta.Bids) != 1 || len(delta.Asks) != 1 {
		t.Fatalf("unexpected level counts: %+v", delta)
	}
}

func TestTransformForceOrderLiquidation(t *testing.T) {
	sub := model.Subscription{Exchange: model.BinanceFuturesUsd, Instrument: model.NewInstrument("BTC", "USDT", model.FuturePerpetual), Kind: model.KindLiquidation}
	tr := installedTransformer(t, sub, "btcusdt@forceOrder")

	frame := []byte(`{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","q":"3","p":"49000","T":1700000000000}}`)
	events, err := tr.Transform(frame, time.Now())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	liq := events[0].Payload.(model.Liquidation)
	if liq.Side != model.Sell {
		t.Errorf("side = %s, want sell", liq.Side)
	}
	if !liq.Quantity.Equal(mustDecimal(t, "3")) {
		t.Errorf("quantity = %s, want 3", liq.Quantity)
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("invalid decimal literal %q: %v", s, err)
	}
	return d
}
