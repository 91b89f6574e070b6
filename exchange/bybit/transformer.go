package bybit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptostream/connector"
	"cryptostream/model"
)

// Transformer maps Bybit v5 public topic frames onto the normalized model.
type Transformer struct {
	table *connector.Table
}

func newTransformer() *Transformer { return &Transformer{table: connector.NewTable()} }

func (t *Transformer) InstallRoute(id model.SubscriptionID, sub model.Subscription) {
	t.table.InstallRoute(id, sub)
}

type envelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type tradeEntry struct {
	Price string `json:"p"`
	Size  string `json:"v"`
	Side  string `json:"S"`
	TS    int64  `json:"T"`
	ID    string `json:"i"`
}

type orderbookData struct {
	Seq  int64      `json:"seq"`
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`
}

type klineEntry struct {
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Open    string `json:"open"`
	Close   string `json:"close"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

type liquidationData struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`
	TS    int64  `json:"updatedTime"`
}

func (t *Transformer) Transform(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if env.Topic == "" {
		return nil, nil
	}
	inst, _, ok := t.table.Resolve(model.SubscriptionID(env.Topic))
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubscription, env.Topic)
	}

	switch {
	case len(env.Topic) >= 11 && env.Topic[:11] == "publicTrade":
		var entries []tradeEntry
		if err := json.Unmarshal(env.Data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
		}
		out := make([]model.MarketEvent, 0, len(entries))
		for _, e := range entries {
			price, e1 := decimal.NewFromString(e.Price)
			qty, e2 := decimal.NewFromString(e.Size)
			if e1 != nil || e2 != nil {
				continue
			}
			side := model.Buy
			if e.Side == "Sell" {
				side = model.Sell
			}
			out = append(out, model.MarketEvent{
				Exchange:   model.Bybit,
				Instrument: inst,
				ReceivedAt: receivedAt,
				ExchangeTS: time.UnixMilli(e.TS),
				Payload:    model.Trade{ID: e.ID, Price: price, Quantity: qty, Side: side},
			})
		}
		return out, nil

	case len(env.Topic) >= 9 && env.Topic[:9] == "orderbook":
		var ob orderbookData
		if err := json.Unmarshal(env.Data, &ob); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
		}
		bids, err := levels(ob.Bids)
		if err != nil {
			return nil, err
		}
		asks, err := levels(ob.Asks)
		if err != nil {
			return nil, err
		}
		return []model.MarketEvent{{
			Exchange:   model.Bybit,
			Instrument: inst,
			ReceivedAt: receivedAt,
			ExchangeTS: time.UnixMilli(env.TS),
			Payload:    model.OrderBookDelta{Sequence: uint64(ob.Seq), Bids: bids, Asks: asks},
		}}, nil

	case len(env.Topic) >= 5 && env.Topic[:5] == "kline":
		var entries []klineEntry
		if err := json.Unmarshal(env.Data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
		}
		out := make([]model.MarketEvent, 0, len(entries))
		for _, k := range entries {
			open, e1 := decimal.NewFromString(k.Open)
			high, e2 := decimal.NewFromString(k.High)
			low, e3 := decimal.NewFromString(k.Low)
			cls, e4 := decimal.NewFromString(k.Close)
			vol, e5 := decimal.NewFromString(k.Volume)
			if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
				continue
			}
			out = append(out, model.MarketEvent{
				Exchange:   model.Bybit,
				Instrument: inst,
				ReceivedAt: receivedAt,
				Payload: model.Candle{
					Open: open, High: high, Low: low, Close: cls, Volume: vol,
					StartTime: time.UnixMilli(k.Start), EndTime: time.UnixMilli(k.End),
					Closed: k.Confirm,
				},
			})
		}
		return out, nil

	case len(env.Topic) >= 11 && env.Topic[:11] == "liquidation":
		var l liquidationData
		if err := json.Unmarshal(env.Data, &l); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
		}
		price, e1 := decimal.NewFromString(l.Price)
		qty, e2 := decimal.NewFromString(l.Size)
		if e1 != nil || e2 != nil {
			return nil, fmt.Errorf("%w: liquidation numeric field", model.ErrParse)
		}
		side := model.Sell
		if l.Side == "Buy" {
			side = model.Buy
		}
		return []model.MarketEvent{{
			Exchange:   model.Bybit,
			Instrument: inst,
			ReceivedAt: receivedAt,
			ExchangeTS: time.UnixMilli(l.TS),
			Payload:    model.Liquidation{Side: side, Price: price, Quantity: qty, Time: time.UnixMilli(l.TS)},
		}}, nil

	default:
		return nil, nil
	}
}

func levels(raw [][]string) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			continue
		}
		p, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("%w: level price %q", model.ErrParse, pair[0])
		}
		q, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("%w: level qty %q", model.ErrParse, pair[1])
		}
		out = append(out, model.Level{Price: p, Quantity: q})
	}
	return out, nil
}
