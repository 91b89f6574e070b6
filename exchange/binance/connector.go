// Package binance implements the Connector and Transformer for Binance's
// public spot and USD-margined futures WebSocket streams, grounded on the
// combined-stream subscribe protocol used throughout the teacher's
// reader/binance package.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"cryptostream/connector"
	"cryptostream/exchange"
	"cryptostream/model"
)

const (
	spotURL    = "wss://stream.binance.com:9443/ws"
	futuresURL = "wss://fstream.binance.com/ws"
)

func init() {
	exchange.Register(spotFactory{})
	exchange.Register(futuresFactory{})
}

type spotFactory struct{}

func (spotFactory) Exchange() model.ExchangeID { return model.BinanceSpot }
func (spotFactory) NewConnector() connector.Connector {
	return &Connector{market: marketSpot}
}
func (spotFactory) NewTransformer() connector.Transformer { return newTransformer(model.BinanceSpot) }

type futuresFactory struct{}

func (futuresFactory) Exchange() model.ExchangeID { return model.BinanceFuturesUsd }
func (futuresFactory) NewConnector() connector.Connector {
	return &Connector{market: marketFutures}
}
func (futuresFactory) NewTransformer() connector.Transformer { return newTransformer(model.BinanceFuturesUsd) }

type market int

const (
	marketSpot market = iota
	marketFutures
)

// Connector implements connector.Connector for one Binance market.
type Connector struct {
	market market
	nextID int64
}

func (c *Connector) URL(subs []model.Subscription) (string, error) {
	if c.market == marketFutures {
		return futuresURL, nil
	}
	return spotURL, nil
}

func streamName(sub model.Subscription) (string, model.SubscriptionID, error) {
	sym := strings.ToLower(sub.Instrument.Base + sub.Instrument.Quote)
	switch sub.Kind {
	case model.KindTrade:
		s := sym + "@trade"
		return s, model.SubscriptionID(s), nil
	case model.KindCandle:
		interval := binanceInterval(sub.CandleInterval)
		s := fmt.Sprintf("%s@kline_%s", sym, interval)
		return s, model.SubscriptionID(s), nil
	case model.KindOrderBookL1:
		s := sym + "@bookTicker"
		return s, model.SubscriptionID(s), nil
	case model.OrderBookL2Delta:
		s := sym + "@depth@100ms"
		return s, model.SubscriptionID(s), nil
	case model.KindLiquidation:
		s := sym + "@forceOrder"
		return s, model.SubscriptionID(s), nil
	default:
		return "", "", fmt.Errorf("binance: unsupported data kind %s", sub.Kind)
	}
}

func binanceInterval(i model.CandleInterval) string {
	switch i {
	case model.Interval1m:
		return "1m"
	case model.Interval5m:
		return "5m"
	case model.Interval15m:
		return "15m"
	case model.Interval1h:
		return "1h"
	case model.Interval1d:
		return "1d"
	default:
		return "1m"
	}
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type ackMessage struct {
	Result interface{} `json:"result"`
	ID     int64       `json:"id"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

func (c *Connector) Requests(subs []model.Subscription) ([]connector.Request, error) {
	if len(subs) == 0 {
		return nil, nil
	}
	params := make([]string, 0, len(subs))
	reqs := make([]connector.Request, 0, len(subs))
	for _, s := range subs {
		stream, id, err := streamName(s)
		if err != nil {
			return nil, err
		}
		params = append(params, stream)
		reqs = append(reqs, connector.Request{Sub: s, ID: id})
	}
	reqID := atomic.AddInt64(&c.nextID, 1)
	msg := subscribeMessage{Method: "SUBSCRIBE", Params: params, ID: reqID}
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("binance: encode subscribe: %w", err)
	}
	// Binance acks the whole batch in a single frame echoing the request
	// id, so only the first Request carries the wire frame.
	reqs[0].Frame = frame
	reqs[0].Text = true
	return reqs, nil
}

func (c *Connector) ExpectedAcks(subs []model.Subscription) connector.AckExpectation {
	return connector.AckExpectation{
		Count: 1,
		Predicate: func(f connector.Classified) bool {
			return f.Kind == connector.KindSubscribed
		},
	}
}

func (c *Connector) Classify(frame []byte, isText bool) connector.Classified {
	var ack ackMessage
	if err := json.Unmarshal(frame, &ack); err == nil && ack.ID != 0 {
		if ack.Error != nil {
			return connector.Classified{Kind: connector.KindExchangeError, Code: fmt.Sprint(ack.Error.Code), Message: ack.Error.Msg}
		}
		return connector.Classified{Kind: connector.KindSubscribed}
	}
	return connector.Classified{Kind: connector.KindData, Raw: frame}
}

// PingSchedule is nil: Binance pings at the WebSocket control-frame level,
// which the transport answers automatically; there is no JSON-level
// keepalive to schedule here.
func (c *Connector) PingSchedule() *connector.PingSchedule { return nil }

func (c *Connector) FatalCodes() map[string]struct{} {
	return map[string]struct{}{
		"-1121": {}, // invalid symbol
		"-2015": {}, // invalid api key / ip banned
	}
}

func (c *Connector) MaxStreamsPerConnection() int { return 1024 }
