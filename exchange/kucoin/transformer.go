package kucoin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptostream/connector"
	"cryptostream/internal/symbols"
	"cryptostream/model"
)

// Transformer maps Kucoin's topic-addressed message envelopes onto the
// normalized model.
type Transformer struct {
	table *connector.Table
}

func newTransformer() *Transformer { return &Transformer{table: connector.NewTable()} }

func (t *Transformer) InstallRoute(id model.SubscriptionID, sub model.Subscription) {
	t.table.InstallRoute(id, sub)
}

type tradeData struct {
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	TradeID string `json:"tradeId"`
	Time    string `json:"time"` // nanoseconds, as a string
}

type tickerData struct {
	BestAsk     string `json:"bestAsk"`
	BestAskSize string `json:"bestAskSize"`
	BestBid     string `json:"bestBid"`
	BestBidSize string `json:"bestBidSize"`
}

type level2Data struct {
	Changes struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
	} `json:"changes"`
	SequenceEnd int64 `json:"sequenceEnd"`
}

type candleData struct {
	Candles []string `json:"candles"`
}

func (t *Transformer) Transform(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var msg inboundMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if msg.Type != "message" || msg.Topic == "" {
		return nil, nil
	}
	inst, sub, ok := t.table.Resolve(model.SubscriptionID(msg.Topic))
	if !ok {
		// Kucoin topics carry the symbol after the last ':' (candle topics
		// append "_<interval>"); normalize it the same way Kraken's
		// unknown-subscription path does, so an operator can correlate the
		// miss against the same instrument on another venue's logs.
		sym := msg.Topic
		if i := strings.LastIndex(sym, ":"); i >= 0 {
			sym = sym[i+1:]
		}
		if i := strings.Index(sym, "_"); i >= 0 {
			sym = sym[:i]
		}
		return nil, fmt.Errorf("%w: %s (canonical %s)", model.ErrUnknownSubscription, msg.Topic, symbols.NormalizeKucoinSymbol(sym))
	}

	switch {
	case strings.HasPrefix(msg.Topic, "/market/match:"):
		return t.transformTrade(inst, msg.Data, receivedAt)
	case strings.HasPrefix(msg.Topic, "/market/ticker:"):
		return t.transformTicker(inst, msg.Data, receivedAt)
	case strings.HasPrefix(msg.Topic, "/market/level2:"):
		return t.transformLevel2(inst, msg.Data, receivedAt)
	case strings.HasPrefix(msg.Topic, "/market/candles:"):
		return t.transformCandle(inst, sub.CandleInterval, msg.Data, receivedAt)
	default:
		return nil, nil
	}
}

func (t *Transformer) transformTrade(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var d tradeData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	price, e1 := decimal.NewFromString(d.Price)
	qty, e2 := decimal.NewFromString(d.Size)
	if e1 != nil || e2 != nil {
		return nil, fmt.Errorf("%w: trade numeric field", model.ErrParse)
	}
	side := model.Buy
	if d.Side == "sell" {
		side = model.Sell
	}
	// Kucoin's trade timestamp is nanoseconds since epoch, unlike every
	// other field on this exchange which is milliseconds.
	nanos, _ := strconv.ParseInt(d.Time, 10, 64)
	return []model.MarketEvent{{
		Exchange:   model.Kucoin,
		Instrument: inst,
		ReceivedAt: receivedAt,
		ExchangeTS: time.Unix(0, nanos).UTC(),
		Payload:    model.Trade{ID: d.TradeID, Price: price, Quantity: qty, Side: side},
	}}, nil
}

func (t *Transformer) transformTicker(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var d tickerData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	bidPrice, e1 := decimal.NewFromString(d.BestBid)
	bidSize, e2 := decimal.NewFromString(d.BestBidSize)
	askPrice, e3 := decimal.NewFromString(d.BestAsk)
	askSize, e4 := decimal.NewFromString(d.BestAskSize)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return nil, fmt.Errorf("%w: ticker numeric field", model.ErrParse)
	}
	return []model.MarketEvent{{
		Exchange:   model.Kucoin,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload: model.OrderBookL1{
			BestBid: model.Level{Price: bidPrice, Quantity: bidSize},
			BestAsk: model.Level{Price: askPrice, Quantity: askSize},
		},
	}}, nil
}

func (t *Transformer) transformLevel2(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var d level2Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	bids, err := levels(d.Changes.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := levels(d.Changes.Asks)
	if err != nil {
		return nil, err
	}
	return []model.MarketEvent{{
		Exchange:   model.Kucoin,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload:    model.OrderBookDelta{Sequence: uint64(d.SequenceEnd), Bids: bids, Asks: asks},
	}}, nil
}

// levels parses Kucoin's 3-element [price, size, sequence] level2 rows,
// discarding the per-level sequence since Sequence is tracked at the
// update level via sequenceEnd instead.
func levels(raw [][]string) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue
		}
		p, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, fmt.Errorf("%w: level price %q", model.ErrParse, row[0])
		}
		q, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("%w: level qty %q", model.ErrParse, row[1])
		}
		out = append(out, model.Level{Price: p, Quantity: q})
	}
	return out, nil
}

func (t *Transformer) transformCandle(inst model.Instrument, iv model.CandleInterval, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var d candleData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if len(d.Candles) < 7 {
		return nil, fmt.Errorf("%w: short candle payload", model.ErrParse)
	}
	startSec, e0 := strconv.ParseInt(d.Candles[0], 10, 64)
	open, e1 := decimal.NewFromString(d.Candles[1])
	close_, e2 := decimal.NewFromString(d.Candles[2])
	high, e3 := decimal.NewFromString(d.Candles[3])
	low, e4 := decimal.NewFromString(d.Candles[4])
	volume, e5 := decimal.NewFromString(d.Candles[5])
	if e0 != nil || e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
		return nil, fmt.Errorf("%w: candle numeric field", model.ErrParse)
	}
	span := time.Minute
	switch iv {
	case model.Interval5m:
		span = 5 * time.Minute
	case model.Interval15m:
		span = 15 * time.Minute
	case model.Interval1h:
		span = time.Hour
	case model.Interval1d:
		span = 24 * time.Hour
	}
	start := time.Unix(startSec, 0).UTC()
	return []model.MarketEvent{{
		Exchange:   model.Kucoin,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload: model.Candle{
			Open: open, High: high, Low: low, Close: close_, Volume: volume,
			StartTime: start,
			EndTime:   start.Add(span),
			Closed:    true,
		},
	}}, nil
}
