// Package bybit implements the Connector and Transformer for Bybit's public
// v5 WebSocket streams, grounded on the topic-based subscribe protocol used
// throughout the teacher's reader/bybit package (internal/reader/bybit).
package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptostream/connector"
	"cryptostream/exchange"
	"cryptostream/model"
)

const (
	spotURL   = "wss://stream.bybit.com/v5/public/spot"
	linearURL = "wss://stream.bybit.com/v5/public/linear"
)

func init() { exchange.Register(factory{}) }

type factory struct{}

func (factory) Exchange() model.ExchangeID          { return model.Bybit }
func (factory) NewConnector() connector.Connector   { return &Connector{} }
func (factory) NewTransformer() connector.Transformer { return newTransformer() }

// Connector implements connector.Connector for Bybit.
type Connector struct{}

func (c *Connector) URL(subs []model.Subscription) (string, error) {
	kind := subs[0].Instrument.Kind
	for _, s := range subs[1:] {
		if s.Instrument.Kind != kind {
			return "", model.ErrUnsupportedInstMix
		}
	}
	if kind == model.FuturePerpetual || kind == model.FutureDated {
		return linearURL, nil
	}
	return spotURL, nil
}

func topic(sub model.Subscription) (string, error) {
	sym := strings.ToUpper(sub.Instrument.Base + sub.Instrument.Quote)
	switch sub.Kind {
	case model.KindTrade:
		return "publicTrade." + sym, nil
	case model.OrderBookL2Delta:
		return "orderbook.50." + sym, nil
	case model.KindOrderBookL1:
		return "tickers." + sym, nil
	case model.KindLiquidation:
		return "liquidation." + sym, nil
	case model.KindCandle:
		return "kline." + bybitInterval(sub.CandleInterval) + "." + sym, nil
	default:
		return "", fmt.Errorf("bybit: unsupported data kind %s", sub.Kind)
	}
}

func bybitInterval(i model.CandleInterval) string {
	switch i {
	case model.Interval1m:
		return "1"
	case model.Interval5m:
		return "5"
	case model.Interval15m:
		return "15"
	case model.Interval1h:
		return "60"
	case model.Interval1d:
		return "D"
	default:
		return "1"
	}
}

type subscribeMessage struct {
	Op    string   `json:"op"`
	Args  []string `json:"args"`
	ReqID string   `json:"req_id"`
}

type ackMessage struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
	ReqID   string `json:"req_id"`
}

func (c *Connector) Requests(subs []model.Subscription) ([]connector.Request, error) {
	args := make([]string, 0, len(subs))
	reqs := make([]connector.Request, 0, len(subs))
	for _, s := range subs {
		tp, err := topic(s)
		if err != nil {
			return nil, err
		}
		args = append(args, tp)
		reqs = append(reqs, connector.Request{Sub: s, ID: model.SubscriptionID(tp)})
	}
	msg := subscribeMessage{Op: "subscribe", Args: args, ReqID: fmt.Sprintf("%d", time.Now().UnixNano())}
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("bybit: encode subscribe: %w", err)
	}
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
	if err := json.Unmarshal(frame, &ack); err == nil && ack.Op == "subscribe" {
		if !ack.Success {
			return connector.Classified{Kind: connector.KindExchangeError, Code: "subscribe_failed", Message: ack.RetMsg}
		}
		return connector.Classified{Kind: connector.KindSubscribed}
	}
	if ack.Op == "ping" {
		return connector.Classified{Kind: connector.KindPing, Payload: frame}
	}
	if ack.Op == "pong" {
		return connector.Classified{Kind: connector.KindPong}
	}
	return connector.Classified{Kind: connector.KindData, Raw: frame}
}

// PingSchedule sends Bybit's required JSON ping every 20s; Bybit does not
// reliably answer bare WebSocket control-frame pings on all regions, so
// the client-initiated JSON ping is mandatory.
func (c *Connector) PingSchedule() *connector.PingSchedule {
	return &connector.PingSchedule{
		Interval: 20 * time.Second,
		Payload: func() []byte {
			b, _ := json.Marshal(struct {
				Op    string `json:"op"`
				ReqID string `json:"req_id"`
			}{Op: "ping", ReqID: strconv.FormatInt(time.Now().UnixNano(), 10)})
			return b
		},
	}
}

func (c *Connector) FatalCodes() map[string]struct{} {
	return map[string]struct{}{
		"10003": {}, // invalid api key
		"10004": {}, // invalid signature / banned
	}
}

func (c *Connector) MaxStreamsPerConnection() int { return 200 }
