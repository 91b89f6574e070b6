package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cryptostream/connector"
	"cryptostream/model"
)

// Transformer maps OKX's arg/data envelopes onto the normalized model.
type Transformer struct {
	table *connector.Table
}

func newTransformer() *Transformer { return &Transformer{table: connector.NewTable()} }

func (t *Transformer) InstallRoute(id model.SubscriptionID, sub model.Subscription) {
	t.table.InstallRoute(id, sub)
}

type dataMessage struct {
	Arg  arg             `json:"arg"`
	Data json.RawMessage `json:"data"`
}

type tradeEntry struct {
	TradeID string `json:"tradeId"`
	Price   string `json:"px"`
	Size    string `json:"sz"`
	Side    string `json:"side"`
	TS      string `json:"ts"`
}

type bookEntry struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	SeqID int64     `json:"seqId"`
	TS    string    `json:"ts"`
}

type liquidationDetail struct {
	Side string `json:"side"`
	Size string `json:"sz"`
	Price string `json:"bkPx"`
	TS    string `json:"ts"`
}

type liquidationEntry struct {
	Details []liquidationDetail `json:"details"`
}

func (t *Transformer) Transform(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var msg dataMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if msg.Arg.Channel == "" || msg.Data == nil {
		return nil, nil
	}
	id := model.SubscriptionID(msg.Arg.Channel + "|" + msg.Arg.InstID)
	inst, sub, ok := t.table.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubscription, id)
	}

	switch {
	case msg.Arg.Channel == "trades":
		return t.transformTrades(inst, msg.Data, receivedAt)
	case msg.Arg.Channel == "bbo-tbt":
		return t.transformBBO(inst, msg.Data, receivedAt)
	case msg.Arg.Channel == "books":
		return t.transformBooks(inst, msg.Data, receivedAt)
	case msg.Arg.Channel == "liquidation-orders":
		return t.transformLiquidations(inst, msg.Data, receivedAt)
	case len(msg.Arg.Channel) >= 6 && msg.Arg.Channel[:6] == "candle":
		return t.transformCandle(inst, sub.CandleInterval, msg.Data, receivedAt)
	default:
		return nil, nil
	}
}

func (t *Transformer) transformTrades(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var entries []tradeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
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
		if e.Side == "sell" {
			side = model.Sell
		}
		tsMs, _ := strconv.ParseInt(e.TS, 10, 64)
		out = append(out, model.MarketEvent{
			Exchange:   model.Okx,
			Instrument: inst,
			ReceivedAt: receivedAt,
			ExchangeTS: time.UnixMilli(tsMs).UTC(),
			Payload:    model.Trade{ID: e.TradeID, Price: price, Quantity: qty, Side: side},
		})
	}
	return out, nil
}

func (t *Transformer) transformBBO(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var entries []bookEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	out := make([]model.MarketEvent, 0, len(entries))
	for _, e := range entries {
		if len(e.Bids) == 0 || len(e.Asks) == 0 {
			continue
		}
		bid, err := level(e.Bids[0])
		if err != nil {
			return nil, err
		}
		ask, err := level(e.Asks[0])
		if err != nil {
			return nil, err
		}
		out = append(out, model.MarketEvent{
			Exchange:   model.Okx,
			Instrument: inst,
			ReceivedAt: receivedAt,
			Payload:    model.OrderBookL1{BestBid: bid, BestAsk: ask},
		})
	}
	return out, nil
}

func (t *Transformer) transformBooks(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var entries []bookEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	out := make([]model.MarketEvent, 0, len(entries))
	for _, e := range entries {
		bids, err := levels(e.Bids)
		if err != nil {
			return nil, err
		}
		asks, err := levels(e.Asks)
		if err != nil {
			return nil, err
		}
		out = append(out, model.MarketEvent{
			Exchange:   model.Okx,
			Instrument: inst,
			ReceivedAt: receivedAt,
			Payload:    model.OrderBookDelta{Sequence: uint64(e.SeqID), Bids: bids, Asks: asks},
		})
	}
	return out, nil
}

func (t *Transformer) transformLiquidations(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var entries []liquidationEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	var out []model.MarketEvent
	for _, e := range entries {
		for _, d := range e.Details {
			price, e1 := decimal.NewFromString(d.Price)
			qty, e2 := decimal.NewFromString(d.Size)
			if e1 != nil || e2 != nil {
				continue
			}
			side := model.Sell
			if d.Side == "buy" {
				side = model.Buy
			}
			tsMs, _ := strconv.ParseInt(d.TS, 10, 64)
			out = append(out, model.MarketEvent{
				Exchange:   model.Okx,
				Instrument: inst,
				ReceivedAt: receivedAt,
				ExchangeTS: time.UnixMilli(tsMs).UTC(),
				Payload:    model.Liquidation{Side: side, Price: price, Quantity: qty, Time: time.UnixMilli(tsMs).UTC()},
			})
		}
	}
	return out, nil
}

func (t *Transformer) transformCandle(inst model.Instrument, iv model.CandleInterval, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
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
	out := make([]model.MarketEvent, 0, len(rows))
	for _, r := range rows {
		if len(r) < 9 {
			continue
		}
		tsMs, e0 := strconv.ParseInt(r[0], 10, 64)
		open, e1 := decimal.NewFromString(r[1])
		high, e2 := decimal.NewFromString(r[2])
		low, e3 := decimal.NewFromString(r[3])
		cls, e4 := decimal.NewFromString(r[4])
		volume, e5 := decimal.NewFromString(r[5])
		if e0 != nil || e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
			continue
		}
		start := time.UnixMilli(tsMs).UTC()
		out = append(out, model.MarketEvent{
			Exchange:   model.Okx,
			Instrument: inst,
			ReceivedAt: receivedAt,
			Payload: model.Candle{
				Open: open, High: high, Low: low, Close: cls, Volume: volume,
				StartTime: start,
				EndTime:   start.Add(span),
				Closed:    r[8] == "1",
			},
		})
	}
	return out, nil
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
			continue
		}
		out = append(out, lv)
	}
	return out, nil
}
