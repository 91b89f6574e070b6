package binance

import (
	"encoding/json"
	"testing"

	"cryptostream/connector"
	"cryptostream/model"
)

func TestRequestsBatchesSubscriptionsIntoOneFrame(t *testing.T) {
	c := &Connector{market: marketSpot}
	subs := []model.Subscription{
		{Exchange: model.BinanceSpot, Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.KindTrade},
		{Exchange: model.BinanceSpot, Instrument: model.NewInstrument("ETH", "USDT", model.Spot), Kind: model.KindOrderBookL1},
	}
	reqs, err := c.Requests(subs)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests (one per id), got %d", len(reqs))
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
	if msg.Method != "SUBSCRIBE" || len(msg.Params) != 2 {
		t.Fatalf("unexpected subscribe message: %+v", msg)
	}
	if reqs[0].ID != "btcusdt@trade" || reqs[1].ID != "ethusdt@bookTicker" {
		t.Fatalf("unexpected subscription ids: %s, %s", reqs[0].ID, reqs[1].ID)
	}
}

func TestClassifyRecognizesAckAndError(t *testing.T) {
	c := &Connector{}

	ack := []byte(`{"result":null,"id":1}`)
	if got := c.Classify(ack, true).Kind; got != connector.KindSubscribed {
		t.Errorf("ack classified as %v, want KindSubscribed", got)
	}

	errFrame := []byte(`{"id":1,"error":{"code":-1121,"msg":"Invalid symbol."}}`)
	cl := c.Classify(errFrame, true)
	if cl.Kind != connector.KindExchangeError || cl.Code != "-1121" {
		t.Errorf("unexpected classification: %+v", cl)
	}

	data := []byte(`{"e":"trade","s":"BTCUSDT"}`)
	if got := c.Classify(data, true).Kind; got != connector.KindData {
		t.Errorf("data frame classified as %v, want KindData", got)
	}
}

func TestFatalCodesIncludeInvalidSymbolAndBannedKey(t *testing.T) {
	c := &Connector{}
	codes := c.FatalCodes()
	for _, code := range []string{"-1121", "-2015"} {
		if _, ok := codes[code]; !ok {
			t.Errorf("expected %s to be a fatal code", code)
		}
	}
}

func TestURLSelectsHostByMarket(t *testing.T) {
	spot := &Connector{market: marketSpot}
	futures := &Connector{market: marketFutures}

	u, _ := spot.URL(nil)
	if u != spotURL {
		t.Errorf("spot url = %s, want %s", u, spotURL)
	}
	u, _ = futures.URL(nil)
	if u != futuresURL {
		t.Errorf("futures url = %s, want %s", u, futuresURL)
	}
}
