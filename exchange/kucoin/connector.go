// Package kucoin implements the Connector and Transformer for Kucoin's
// public spot WebSocket API. Unlike the other exchanges in this module,
// Kucoin has no static public endpoint: a client must first POST to a
// bullet-token bootstrap endpoint to obtain a short-lived token and an
// assigned server, then connect with that token as a query parameter.
// Grounded on original_source/src/exchange/kucoin (the token/instance
// server exchange) since the teacher's own internal/reader/kucoin leans
// entirely on the Kucoin Go SDK, which this module does not depend on.
package kucoin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cryptostream/connector"
	"cryptostream/exchange"
	"cryptostream/model"
)

const bulletURL = "https://api.kucoin.com/api/v1/bullet-public"

func init() { exchange.Register(factory{}) }

type factory struct{}

func (factory) Exchange() model.ExchangeID            { return model.Kucoin }
func (factory) NewConnector() connector.Connector     { return &Connector{client: http.DefaultClient} }
func (factory) NewTransformer() connector.Transformer { return newTransformer() }

// Connector implements connector.Connector for Kucoin spot. client and
// bulletURL are swappable in tests so URL never has to reach the real
// bullet endpoint.
type Connector struct {
	client    *http.Client
	bulletURL string
}

func (c *Connector) endpoint() string {
	if c.bulletURL != "" {
		return c.bulletURL
	}
	return bulletURL
}

type bulletResponse struct {
	Code string `json:"code"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			Encrypt      bool   `json:"encrypt"`
			PingInterval int    `json:"pingInterval"`
			PingTimeout  int    `json:"pingTimeout"`
		} `json:"instanceServers"`
	} `json:"data"`
}

// URL fetches a fresh bullet token and returns the assigned server's
// WebSocket URL with that token and a new connectId attached. The token is
// single-use per connection: Kucoin expires it once the socket it was
// issued for disconnects.
func (c *Connector) URL(subs []model.Subscription) (string, error) {
	resp, err := c.client.Post(c.endpoint(), "application/json", nil)
	if err != nil {
		return "", fmt.Errorf("kucoin: bullet request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("kucoin: bullet response: %w", err)
	}
	var br bulletResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return "", fmt.Errorf("kucoin: decode bullet response: %w", err)
	}
	if br.Code != "200000" || len(br.Data.InstanceServers) == 0 {
		return "", fmt.Errorf("kucoin: bullet token unavailable (code %s)", br.Code)
	}
	srv := br.Data.InstanceServers[0]
	return fmt.Sprintf("%s?token=%s&connectId=%s", srv.Endpoint, br.Data.Token, uuid.New().String()), nil
}

func topic(sub model.Subscription) (string, error) {
	sym := strings.ToUpper(sub.Instrument.Base) + "-" + strings.ToUpper(sub.Instrument.Quote)
	switch sub.Kind {
	case model.KindTrade:
		return "/market/match:" + sym, nil
	case model.KindOrderBookL1:
		return "/market/ticker:" + sym, nil
	case model.OrderBookL2Delta:
		return "/market/level2:" + sym, nil
	case model.KindCandle:
		return "/market/candles:" + sym + "_" + kucoinInterval(sub.CandleInterval), nil
	default:
		return "", fmt.Errorf("kucoin: unsupported data kind %s", sub.Kind)
	}
}

func kucoinInterval(i model.CandleInterval) string {
	switch i {
	case model.Interval1m:
		return "1min"
	case model.Interval5m:
		return "5min"
	case model.Interval15m:
		return "15min"
	case model.Interval1h:
		return "1hour"
	case model.Interval1d:
		return "1day"
	default:
		return "1min"
	}
}

type subscribeMessage struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic"`
	PrivateChannel bool   `json:"privateChannel"`
	Response       bool   `json:"response"`
}

// Requests issues one subscribe frame per subscription. Kucoin's protocol
// allows multiple topics in one message only via a single comma-joined
// topic string of the SAME channel shape; mixing channel kinds in one
// frame is not guaranteed to ack individually, so each subscription gets
// its own frame and its own request id, mirroring Kraken's approach.
func (c *Connector) Requests(subs []model.Subscription) ([]connector.Request, error) {
	reqs := make([]connector.Request, 0, len(subs))
	for _, s := range subs {
		tp, err := topic(s)
		if err != nil {
			return nil, err
		}
		msg := subscribeMessage{
			ID:             uuid.New().String(),
			Type:           "subscribe",
			Topic:          tp,
			PrivateChannel: false,
			Response:       true,
		}
		frame, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("kucoin: encode subscribe: %w", err)
		}
		reqs = append(reqs, connector.Request{Sub: s, ID: model.SubscriptionID(tp), Frame: frame, Text: true})
	}
	return reqs, nil
}

func (c *Connector) ExpectedAcks(subs []model.Subscription) connector.AckExpectation {
	return connector.AckExpectation{Count: len(subs)}
}

type inboundMessage struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
}

func (c *Connector) Classify(frame []byte, isText bool) connector.Classified {
	var msg inboundMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return connector.Classified{Kind: connector.KindUnknown}
	}
	switch msg.Type {
	case "welcome":
		return connector.Classified{Kind: connector.KindUnknown}
	case "ack":
		return connector.Classified{Kind: connector.KindSubscribed}
	case "pong":
		return connector.Classified{Kind: connector.KindPong}
	case "error":
		return connector.Classified{Kind: connector.KindExchangeError, Code: fmt.Sprint(msg.Code), Message: string(msg.Data)}
	case "message":
		return connector.Classified{Kind: connector.KindData, Raw: frame}
	default:
		return connector.Classified{Kind: connector.KindUnknown}
	}
}

// PingSchedule sends Kucoin's required client ping. The bullet response
// carries the server's actual pingInterval, but that value is only known
// at URL() time and PingSchedule has no way to receive it back, so this
// uses Kucoin's documented default of 18s, safely inside every observed
// pingTimeout.
func (c *Connector) PingSchedule() *connector.PingSchedule {
	return &connector.PingSchedule{
		Interval: 18 * time.Second,
		Payload: func() []byte {
			b, _ := json.Marshal(struct {
				ID   string `json:"id"`
				Type string `json:"type"`
			}{ID: uuid.New().String(), Type: "ping"})
			return b
		},
	}
}

func (c *Connector) FatalCodes() map[string]struct{} {
	return map[string]struct{}{
		"401": {}, // token expired
		"404": {}, // unknown topic
	}
}

func (c *Connector) MaxStreamsPerConnection() int { return 300 }
