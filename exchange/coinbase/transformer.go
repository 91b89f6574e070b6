package coinbase

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptostream/connector"
	"cryptostream/model"
)

// Transformer maps Coinbase's type/product_id envelopes onto the
// normalized model.
type Transformer struct {
	table *connector.Table
}

func newTransformer() *Transformer { return &Transformer{table: connector.NewTable()} }

func (t *Transformer) InstallRoute(id model.SubscriptionID, sub model.Subscription) {
	t.table.InstallRoute(id, sub)
}

type envelope struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
}

func channelForType(typ string) string {
	switch typ {
	case "match", "last_match":
		return "matches"
	case "ticker":
		return "ticker"
	case "snapshot", "l2update":
		return "level2"
	default:
		return ""
	}
}

func (t *Transformer) Transform(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	ch := channelForType(env.Type)
	if ch == "" || env.ProductID == "" {
		return nil, nil
	}
	id := model.SubscriptionID(ch + "|" + env.ProductID)
	inst, _, ok := t.table.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubscription, id)
	}

	switch env.Type {
	case "match", "last_match":
		return t.transformMatch(inst, frame, receivedAt)
	case "ticker":
		return t.transformTicker(inst, frame, receivedAt)
	case "snapshot":
		return t.transformSnapshot(inst, frame, receivedAt)
	case "l2update":
		return t.transformUpdate(inst, frame, receivedAt)
	default:
		return nil, nil
	}
}

func (t *Transformer) transformMatch(inst model.Instrument, frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var m struct {
		TradeID int64  `json:"trade_id"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Side    string `json:"side"`
		Time    string `json:"time"`
	}
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	price, e1 := decimal.NewFromString(m.Price)
	qty, e2 := decimal.NewFromString(m.Size)
	if e1 != nil || e2 != nil {
		return nil, fmt.Errorf("%w: trade numeric field", model.ErrParse)
	}
	// Coinbase's "side" names the resting (maker) order's side, so the
	// taker's aggressor side is the opposite.
	side := model.Sell
	if m.Side == "sell" {
		side = model.Buy
	}
	exchangeTS, _ := time.Parse(time.RFC3339Nano, m.Time)
	return []model.MarketEvent{{
		Exchange:   model.Coinbase,
		Instrument: inst,
		ReceivedAt: receivedAt,
		ExchangeTS: exchangeTS,
		Payload:    model.Trade{ID: fmt.Sprintf("%d", m.TradeID), Price: price, Quantity: qty, Side: side},
	}}, nil
}

func (t *Transformer) transformTicker(inst model.Instrument, frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var tk struct {
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	}
	if err := json.Unmarshal(frame, &tk); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	bid, e1 := decimal.NewFromString(tk.BestBid)
	ask, e2 := decimal.NewFromString(tk.BestAsk)
	if e1 != nil || e2 != nil {
		return nil, fmt.Errorf("%w: ticker numeric field", model.ErrParse)
	}
	// Coinbase's ticker message carries only best_bid/best_ask prices, not
	// the size resting at each, so Quantity is left zero.
	return []model.MarketEvent{{
		Exchange:   model.Coinbase,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload: model.OrderBookL1{
			BestBid: model.Level{Price: bid, Quantity: decimal.Zero},
			BestAsk: model.Level{Price: ask, Quantity: decimal.Zero},
		},
	}}, nil
}

func (t *Transformer) transformSnapshot(inst model.Instrument, frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var s struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(frame, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	bids, err := levels(s.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := levels(s.Asks)
	if err != nil {
		return nil, err
	}
	return []model.MarketEvent{{
		Exchange:   model.Coinbase,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload:    model.OrderBookDelta{Bids: bids, Asks: asks},
	}}, nil
}

func (t *Transformer) transformUpdate(inst model.Instrument, frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var u struct {
		Changes [][]string `json:"changes"`
	}
	if err := json.Unmarshal(frame, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	var bids, asks []model.Level
	for _, c := range u.Changes {
		if len(c) < 3 {
			continue
		}
		lv, err := level(c[1:])
		if err != nil {
			return nil, err
		}
		if c[0] == "buy" {
			bids = append(bids, lv)
		} else {
			asks = append(asks, lv)
		}
	}
	return []model.MarketEvent{{
		Exchange:   model.Coinbase,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload:    model.OrderBookDelta{Bids: bids, Asks: asks},
	}}, nil
}

func level(pair []string) (model.Level, error) {
	if len(pair) < 2 {
		return model.Level{}, fmt.Errorf("%w: short level", model.ErrParse)
	}
	p, err := decimal.NewFromString(pair[0])
	if err != nil {
		return model.Level{}, fmt.Errorf("%w: level price %q", model.ErrParse, pair[0])
	}
	q, err := decimal.NewFromString(pair[1])
	if err != nil {
		return model.Level{}, fmt.Errorf("%w: level qty %q", model.ErrParse, pair[1])
	}
	return model.Level{Price: p, Quantity: q}, nil
}

func levels(raw [][]string) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		lv, err := level(pair)
		if err != nil {
			return nil, err
		}
		out = append(out, lv)
	}
	return out, nil
}
