// Package coinbase implements the Connector and Transformer for Coinbase
// Exchange's public WebSocket feed. Grounded on
// original_source/src/exchange/coinbase, which documents the
// subscribe/channels envelope and the "channel|product_id" SubscriptionID
// this package reuses verbatim; the original only wires the trades
// channel, so the order-book and ticker channels here are extended from
// Coinbase's published public API in the same idiom.
package coinbase

import (
	"encoding/json"
	"fmt"
	"strings"

	"cryptostream/connector"
	"cryptostream/exchange"
	"cryptostream/model"
)

const feedURL = "wss://ws-feed.exchange.coinbase.com"

func init() { exchange.Register(factory{}) }

type factory struct{}

func (factory) Exchange() model.ExchangeID            { return model.Coinbase }
func (factory) NewConnector() connector.Connector     { return &Connector{} }
func (factory) NewTransformer() connector.Transformer { return newTransformer() }

// Connector implements connector.Connector for Coinbase Exchange's public
// spot feed. Coinbase has no futures/perpetual public feed, so Liquidation
// and Candle subscriptions are rejected at Requests time.
type Connector struct{}

func (c *Connector) URL(subs []model.Subscription) (string, error) { return feedURL, nil }

func productID(inst model.Instrument) string {
	return strings.ToUpper(inst.Base) + "-" + strings.ToUpper(inst.Quote)
}

func channelName(sub model.Subscription) (string, error) {
	switch sub.Kind {
	case model.KindTrade:
		return "matches", nil
	case model.KindOrderBookL1:
		return "ticker", nil
	case model.OrderBookL2Delta:
		return "level2", nil
	default:
		return "", fmt.Errorf("coinbase: unsupported data kind %s", sub.Kind)
	}
}

type channelGroup struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type subscribeMessage struct {
	Type     string         `json:"type"`
	Channels []channelGroup `json:"channels"`
}

// Requests groups subscriptions by channel name into one subscribe frame:
// Coinbase acks the whole batch as a single subscriptions message, so only
// the first Request carries the wire frame.
func (c *Connector) Requests(subs []model.Subscription) ([]connector.Request, error) {
	groups := make(map[string][]string)
	order := make([]string, 0, 4)
	reqs := make([]connector.Request, 0, len(subs))
	for _, s := range subs {
		ch, err := channelName(s)
		if err != nil {
			return nil, err
		}
		pid := productID(s.Instrument)
		if _, seen := groups[ch]; !seen {
			order = append(order, ch)
		}
		groups[ch] = append(groups[ch], pid)
		reqs = append(reqs, connector.Request{Sub: s, ID: model.SubscriptionID(ch + "|" + pid)})
	}
	msg := subscribeMessage{Type: "subscribe"}
	for _, ch := range order {
		msg.Channels = append(msg.Channels, channelGroup{Name: ch, ProductIDs: groups[ch]})
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("coinbase: encode subscribe: %w", err)
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

type eventMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func (c *Connector) Classify(frame []byte, isText bool) connector.Classified {
	var ev eventMessage
	if err := json.Unmarshal(frame, &ev); err != nil {
		return connector.Classified{Kind: connector.KindUnknown}
	}
	switch ev.Type {
	case "subscriptions":
		return connector.Classified{Kind: connector.KindSubscribed}
	case "error":
		return connector.Classified{Kind: connector.KindExchangeError, Code: ev.Reason, Message: ev.Message}
	case "match", "last_match", "ticker", "snapshot", "l2update":
		return connector.Classified{Kind: connector.KindData, Raw: frame}
	default:
		return connector.Classified{Kind: connector.KindUnknown}
	}
}

// PingSchedule is nil: Coinbase has no client-initiated JSON keepalive and
// relies on the transport's own ping/pong.
func (c *Connector) PingSchedule() *connector.PingSchedule { return nil }

func (c *Connector) FatalCodes() map[string]struct{} {
	return map[string]struct{}{
		"invalid product": {},
	}
}

func (c *Connector) MaxStreamsPerConnection() int { return 200 }
