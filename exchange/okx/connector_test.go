package okx

import (
	"encoding/json"
	"testing"

	"cryptostream/connector"
	"cryptostream/model"
)

func TestRequestsBatchesMixedChannelsIntoOneFrame(t *testing.T) {
	c := &Connector{}
	subs := []model.Subscription{
		{Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.KindTrade},
		{Instrument: model.NewInstrument("BTC", "USDT", model.FuturePerpetual), Kind: model.KindLiquidation},
	}
	reqs, err := c.Requests(subs)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Frame == nil {
		t.Fatal("expected the first request to carry the batched subscribe frame")
	}
	if reqs[1].Frame != nil {
		t.Fatal("expected only the first request to carry a wire frame")
	}
	var msg subscribeMessage
	if err := json.Unmarshal(reqs[0].Frame, &msg); err != nil {
		t.Fatalf("decode subscribe frame: %v", err)
	}
	if msg.Op != "subscribe" || len(msg.Args) != 2 {
		t.Fatalf("unexpected subscribe message: %+v", msg)
	}
	if reqs[0].ID != "trades|BTC-USDT" || reqs[1].ID != "liquidation-orders|BTC-USDT-SWAP" {
		t.Fatalf("unexpected subscription ids: %s, %s", reqs[0].ID, reqs[1].ID)
	}
}

func TestClassifyPongIsBareText(t *testing.T) {
	c := &Connector{}
	if got := c.Classify([]byte("pong"), true).Kind; got != connector.KindPong {
		t.Errorf("pong classified as %v, want KindPong", got)
	}
}

func TestClassifySubscribeAckAndError(t *testing.T) {
	c := &Connector{}
	ok := c.Classify([]byte(`{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`), true)
	if ok.Kind != connector.KindSubscribed || ok.SubID != "trades|BTC-USDT" {
		t.Errorf("unexpected classification: %+v", ok)
	}
	bad := c.Classify([]byte(`{"event":"error","code":"60012","msg":"bad request"}`), true)
	if bad.Kind != connector.KindExchangeError || bad.Code != "60012" {
		t.Errorf("unexpected classification: %+v", bad)
	}
}

func TestClassifyDataFrame(t *testing.T) {
	c := &Connector{}
	frame := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[]}`)
	if got := c.Classify(frame, true).Kind; got != connector.KindData {
		t.Errorf("data frame classified as %v, want KindData", got)
	}
}

func TestFatalCodesIncludeInvalidRequestAndLoginRequired(t *testing.T) {
	c := &Connector{}
	codes := c.FatalCodes()
	for _, code := range []string{"60012", "60009"} {
		if _, ok := codes[code]; !ok {
			t.Errorf("expected %s to be a fatal code", code)
		}
	}
}

func TestInstIDAppendsSwapSuffixForPerpetuals(t *testing.T) {
	spot := model.NewInstrument("BTC", "USDT", model.Spot)
	perp := model.NewInstrument("BTC", "USDT", model.FuturePerpetual)
	if instID(spot) != "BTC-USDT" {
		t.Errorf("spot instId = %s, want BTC-USDT", instID(spot))
	}
	if instID(perp) != "BTC-USDT-SWAP" {
		t.Errorf("perpetual instId = %s, want BTC-USDT-SWAP", instID(perp))
	}
}
