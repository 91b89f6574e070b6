package kucoin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptostream/connector"
	"cryptostream/model"
)

func TestURLFetchesBulletTokenAndBuildsConnectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"200000","data":{"token":"abc123","instanceServers":[{"endpoint":"wss://ws.kucoin.com/endpoint","encrypt":true,"pingInterval":18000,"pingTimeout":10000}]}}`))
	}))
	defer srv.Close()

	c := &Connector{client: srv.Client()}
	c.bulletURL = srv.URL
	u, err := c.URL(nil)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if !strings.HasPrefix(u, "wss://ws.kucoin.com/endpoint?token=abc123&connectId=") {
		t.Errorf("unexpected url: %s", u)
	}
}

func TestURLFailsWhenBulletCodeIsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"401000","data":{}}`))
	}))
	defer srv.Close()

	c := &Connector{client: srv.Client()}
	c.bulletURL = srv.URL
	if _, err := c.URL(nil); err == nil {
		t.Fatal("expected an error when the bullet response code is not 200000")
	}
}

func TestRequestsOneFramePerSubscription(t *testing.T) {
	c := &Connector{}
	subs := []model.Subscription{
		{Instrument: model.NewInstrument("BTC", "USDT", model.Spot), Kind: model.KindTrade},
		{Instrument: model.NewInstrument("ETH", "USDT", model.Spot), Kind: model.KindCandle, CandleInterval: model.Interval5m},
	}
	reqs, err := c.Requests(subs)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected one frame per subscription, got %d", len(reqs))
	}
	if reqs[0].ID != "/market/match:BTC-USDT" {
		t.Errorf("trade id = %s, want /market/match:BTC-USDT", reqs[0].ID)
	}
	if reqs[1].ID != "/market/candles:ETH-USDT_5min" {
		t.Errorf("candle id = %s, want /market/candles:ETH-USDT_5min", reqs[1].ID)
	}
	for _, r := range reqs {
		if r.Frame == nil {
			t.Error("expected every kucoin request to carry its own frame")
		}
	}
}

func TestClassifyAckPongAndError(t *testing.T) {
	c := &Connector{}
	if got := c.Classify([]byte(`{"type":"ack","id":"1"}`), true).Kind; got != connector.KindSubscribed {
		t.Errorf("ack classified as %v, want KindSubscribed", got)
	}
	if got := c.Classify([]byte(`{"type":"pong"}`), true).Kind; got != connector.KindPong {
		t.Errorf("pong classified as %v, want KindPong", got)
	}
	cl := c.Classify([]byte(`{"type":"error","code":404,"data":"topic not found"}`), true)
	if cl.Kind != connector.KindExchangeError || cl.Code != "404" {
		t.Errorf("unexpected classification: %+v", cl)
	}
}

func TestClassifyMessageIsData(t *testing.T) {
	c := &Connector{}
	if got := c.Classify([]byte(`{"type":"message","topic":"/market/match:BTC-USDT"}`), true).Kind; got != connector.KindData {
		t.Errorf("message classified as %v, want KindData", got)
	}
}

func TestFatalCodesIncludeTokenExpiry(t *testing.T) {
	c := &Connector{}
	codes := c.FatalCodes()
	for _, code := range []string{"401", "404"} {
		if _, ok := codes[code]; !ok {
			t.Errorf("expected %s to be a fatal code", code)
		}
	}
}
