// Package kraken implements the Connector and Transformer for Kraken's
// public WebSocket v1 API: an {"event":"subscribe",...} handshake answered
// by a per-pair subscriptionStatus ack, followed by positional-array data
// frames [channelID, payload, channelName, pair].
package kraken

import (
	"encoding/json"
	"fmt"
	"strings"

	"cryptostream/connector"
	"cryptostream/exchange"
	"cryptostream/model"
)

const wsURL = "wss://ws.kraken.com"

func init() { exchange.Register(factory{}) }

type factory struct{}

func (factory) Exchange() model.ExchangeID            { return model.Kraken }
func (factory) NewConnector() connector.Connector     { return &Connector{} }
func (factory) NewTransformer() connector.Transformer { return newTransformer() }

// Connector implements connector.Connector for Kraken's spot feed.
type Connector struct{}

func (c *Connector) URL(subs []model.Subscription) (string, error) { return wsURL, nil }

func pair(inst model.Instrument) string {
	return strings.ToUpper(inst.Base) + "/" + strings.ToUpper(inst.Quote)
}

func krakenChannel(sub model.Subscription) (name string, subField map[string]interface{}, err error) {
	switch sub.Kind {
	case model.KindTrade:
		return "trade", map[string]interface{}{"name": "trade"}, nil
	case model.OrderBookL2Delta:
		return "book-10", map[string]interface{}{"name": "book", "depth": 10}, nil
	case model.KindCandle:
		interval := krakenInterval(sub.CandleInterval)
		return fmt.Sprintf("ohlc-%d", interval), map[string]interface{}{"name": "ohlc", "interval": interval}, nil
	default:
		return "", nil, fmt.Errorf("kraken: unsupported data kind %s", sub.Kind)
	}
}

func krakenInterval(i model.CandleInterval) int {
	switch i {
	case model.Interval1m:
		return 1
	case model.Interval5m:
		return 5
	case model.Interval15m:
		return 15
	case model.Interval1h:
		return 60
	case model.Interval1d:
		return 1440
	default:
		return 1
	}
}

type subscribeMessage struct {
	Event        string                 `json:"event"`
	Pair         []string               `json:"pair"`
	Subscription map[string]interface{} `json:"subscription"`
}

type subscriptionStatus struct {
	Event        string `json:"event"`
	Pair         string `json:"pair"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	ChannelName  string `json:"channelName"`
}

// Requests issues one subscribe frame per subscription: Kraken's
// subscription object only ever takes one channel shape, so a mixed batch
// (trade + ohlc) cannot share a single frame's "subscription" field.
func (c *Connector) Requests(subs []model.Subscription) ([]connector.Request, error) {
	reqs := make([]connector.Request, 0, len(subs))
	for _, s := range subs {
		channel, subField, err := krakenChannel(s)
		if err != nil {
			return nil, err
		}
		p := pair(s.Instrument)
		msg := subscribeMessage{Event: "subscribe", Pair: []string{p}, Subscription: subField}
		frame, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("kraken: encode subscribe: %w", err)
		}
		id := model.SubscriptionID(channel + "|" + p)
		reqs = append(reqs, connector.Request{Sub: s, ID: id, Frame: frame, Text: true})
	}
	return reqs, nil
}

func (c *Connector) ExpectedAcks(subs []model.Subscription) connector.AckExpectation {
	return connector.AckExpectation{Count: len(subs)}
}

func (c *Connector) Classify(frame []byte, isText bool) connector.Classified {
	trimmed := strings.TrimSpace(string(frame))
	if strings.HasPrefix(trimmed, "[") {
		return connector.Classified{Kind: connector.KindData, Raw: frame}
	}
	var ev struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(frame, &ev); err != nil {
		return connector.Classified{Kind: connector.KindUnknown}
	}
	switch ev.Event {
	case "subscriptionStatus":
		var st subscriptionStatus
		_ = json.Unmarshal(frame, &st)
		if st.Status == "error" {
			return connector.Classified{Kind: connector.KindExchangeError, Code: "subscribe_failed", Message: st.ErrorMessage}
		}
		return connector.Classified{Kind: connector.KindSubscribed, SubID: model.SubscriptionID(st.ChannelName + "|" + st.Pair)}
	case "heartbeat":
		return connector.Classified{Kind: connector.KindPong}
	case "systemStatus":
		return connector.Classified{Kind: connector.KindUnknown}
	default:
		return connector.Classified{Kind: connector.KindUnknown}
	}
}

// PingSchedule is nil: Kraken's v1 API has no client-initiated JSON ping;
// liveness is inferred from the heartbeat/data cadence instead.
func (c *Connector) PingSchedule() *connector.PingSchedule { return nil }

func (c *Connector) FatalCodes() map[string]struct{} {
	return map[string]struct{}{"EGeneral:Invalid arguments": {}}
}

func (c *Connector) MaxStreamsPerConnection() int { return 400 }
