// Package okx implements the Connector and Transformer for OKX's public
// WebSocket v5 API. Grounded on original_source/src/exchange/okx, which
// documents the op/args subscribe envelope and the "channel|instId"
// SubscriptionID shape this package reuses verbatim.
package okx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryptostream/connector"
	"cryptostream/exchange"
	"cryptostream/model"
)

const publicURL = "wss://wsaws.okx.com:8443/ws/v5/public"

func init() { exchange.Register(factory{}) }

type factory struct{}

func (factory) Exchange() model.ExchangeID            { return model.Okx }
func (factory) NewConnector() connector.Connector     { return &Connector{} }
func (factory) NewTransformer() connector.Transformer { return newTransformer() }

// Connector implements connector.Connector for OKX public spot and swap
// channels, both of which are served from the same public endpoint.
type Connector struct{}

func (c *Connector) URL(subs []model.Subscription) (string, error) { return publicURL, nil }

func instID(inst model.Instrument) string {
	base, quote := strings.ToUpper(inst.Base), strings.ToUpper(inst.Quote)
	if inst.Kind == model.FuturePerpetual {
		return base + "-" + quote + "-SWAP"
	}
	return base + "-" + quote
}

func channel(sub model.Subscription) (string, error) {
	switch sub.Kind {
	case model.KindTrade:
		return "trades", nil
	case model.KindOrderBookL1:
		return "bbo-tbt", nil
	case model.OrderBookL2Delta:
		return "books", nil
	case model.KindLiquidation:
		return "liquidation-orders", nil
	case model.KindCandle:
		return "candle" + okxInterval(sub.CandleInterval), nil
	default:
		return "", fmt.Errorf("okx: unsupported data kind %s", sub.Kind)
	}
}

func okxInterval(i model.CandleInterval) string {
	switch i {
	case model.Interval1m:
		return "1m"
	case model.Interval5m:
		return "5m"
	case model.Interval15m:
		return "15m"
	case model.Interval1h:
		return "1H"
	case model.Interval1d:
		return "1D"
	default:
		return "1m"
	}
}

type arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subscribeMessage struct {
	Op   string `json:"op"`
	Args []arg  `json:"args"`
}

// Requests batches every subscription into one op/args frame: OKX acks
// each arg individually but accepts a mixed-channel batch in one message.
func (c *Connector) Requests(subs []model.Subscription) ([]connector.Request, error) {
	args := make([]arg, 0, len(subs))
	reqs := make([]connector.Request, 0, len(subs))
	for _, s := range subs {
		ch, err := channel(s)
		if err != nil {
			return nil, err
		}
		inst := instID(s.Instrument)
		args = append(args, arg{Channel: ch, InstID: inst})
		reqs = append(reqs, connector.Request{Sub: s, ID: model.SubscriptionID(ch + "|" + inst)})
	}
	msg := subscribeMessage{Op: "subscribe", Args: args}
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("okx: encode subscribe: %w", err)
	}
	reqs[0].Frame = frame
	reqs[0].Text = true
	return reqs, nil
}

func (c *Connector) ExpectedAcks(subs []model.Subscription) connector.AckExpectation {
	return connector.AckExpectation{Count: len(subs)}
}

type eventMessage struct {
	Event string `json:"event"`
	Arg   arg    `json:"arg"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
}

func (c *Connector) Classify(frame []byte, isText bool) connector.Classified {
	if string(frame) == "pong" {
		return connector.Classified{Kind: connector.KindPong}
	}
	var ev eventMessage
	if err := json.Unmarshal(frame, &ev); err == nil && ev.Event != "" {
		switch ev.Event {
		case "subscribe":
			return connector.Classified{Kind: connector.KindSubscribed, SubID: model.SubscriptionID(ev.Arg.Channel + "|" + ev.Arg.InstID)}
		case "error":
			return connector.Classified{Kind: connector.KindExchangeError, Code: ev.Code, Message: ev.Msg}
		default:
			return connector.Classified{Kind: connector.KindUnknown}
		}
	}
	return connector.Classified{Kind: connector.KindData, Raw: frame}
}

// PingSchedule sends OKX's required bare-text "ping" every 25s, just inside
// the documented 30s idle-disconnect window.
func (c *Connector) PingSchedule() *connector.PingSchedule {
	return &connector.PingSchedule{
		Interval: 25 * time.Second,
		Payload:  func() []byte { return []byte("ping") },
	}
}

func (c *Connector) FatalCodes() map[string]struct{} {
	return map[string]struct{}{
		"60012": {}, // invalid request
		"60009": {}, // login required for this channel
	}
}

func (c *Connector) MaxStreamsPerConnection() int { return 480 }
