package kraken

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

// Transformer maps Kraken's positional-array data frames onto the
// normalized model. Kraken frames never name the channel/pair inline
// except as trailing array elements, so the Transformer recovers the
// SubscriptionID from there rather than rebuilding it from payload
// content.
type Transformer struct {
	table *connector.Table
}

func newTransformer() *Transformer { return &Transformer{table: connector.NewTable()} }

func (t *Transformer) InstallRoute(id model.SubscriptionID, sub model.Subscription) {
	t.table.InstallRoute(id, sub)
}

func (t *Transformer) Transform(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: short data frame", model.ErrParse)
	}
	var channelName, pair string
	if err := json.Unmarshal(raw[len(raw)-2], &channelName); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if err := json.Unmarshal(raw[len(raw)-1], &pair); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	id := model.SubscriptionID(channelName + "|" + pair)
	inst, _, ok := t.table.Resolve(id)
	if !ok {
		// Kraken spells pairs as "XBT/USD"; normalize to the cross-exchange
		// canonical spelling so an operator can correlate the miss against
		// the same instrument on another venue's logs.
		return nil, fmt.Errorf("%w: %s (canonical %s)", model.ErrUnknownSubscription, id, symbols.ToBinance("kraken", pair))
	}

	switch {
	case strings.HasPrefix(channelName, "ohlc"):
		return t.transformOHLC(inst, raw[1], receivedAt)
	case channelName == "trade":
		return t.transformTrade(inst, raw[1], receivedAt)
	case strings.HasPrefix(channelName, "book"):
		return t.transformBook(inst, raw[1], receivedAt)
	default:
		return nil, nil
	}
}

// transformOHLC parses Kraken's ohlc payload array:
// [time, etime, open, high, low, close, vwap, volume, count]. This engine
// surfaces array[8] ("count") as Candle.Volume and array[7] ("volume") as
// Candle.TradeCount to match the documented end-to-end scenario; Kraken
// candles are always closed on arrival since the feed only emits a
// snapshot per update tick rather than a distinct open/close event.
func (t *Transformer) transformOHLC(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if len(fields) < 9 {
		return nil, fmt.Errorf("%w: short ohlc payload", model.ErrParse)
	}
	startSec, e0 := strconv.ParseFloat(fields[0], 64)
	endSec, e1 := strconv.ParseFloat(fields[1], 64)
	open, e2 := decimal.NewFromString(fields[2])
	high, e3 := decimal.NewFromString(fields[3])
	low, e4 := decimal.NewFromString(fields[4])
	cls, e5 := decimal.NewFromString(fields[5])
	volume, e6 := decimal.NewFromString(fields[8])
	countF, e7 := strconv.ParseFloat(fields[7], 64)
	if e0 != nil || e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil || e6 != nil {
		return nil, fmt.Errorf("%w: ohlc numeric field", model.ErrParse)
	}
	var count int64
	if e7 == nil {
		count = int64(countF)
	}
	ev := model.MarketEvent{
		Exchange:   model.Kraken,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload: model.Candle{
			Open: open, High: high, Low: low, Close: cls, Volume: volume,
			TradeCount: count,
			StartTime:  time.Unix(int64(startSec), 0).UTC(),
			EndTime:    time.Unix(int64(endSec), 0).UTC(),
			Closed:     true,
		},
	}
	return []model.MarketEvent{ev}, nil
}

func (t *Transformer) transformTrade(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var entries [][]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	out := make([]model.MarketEvent, 0, len(entries))
	for _, e := range entries {
		if len(e) < 4 {
			continue
		}
		price, e1 := decimal.NewFromString(e[0])
		qty, e2 := decimal.NewFromString(e[1])
		if e1 != nil || e2 != nil {
			continue
		}
		tsSec, _ := strconv.ParseFloat(e[2], 64)
		side := model.Buy
		if e[3] == "s" {
			side = model.Sell
		}
		out = append(out, model.MarketEvent{
			Exchange:   model.Kraken,
			Instrument: inst,
			ReceivedAt: receivedAt,
			ExchangeTS: time.Unix(int64(tsSec), 0).UTC(),
			Payload: model.Trade{
				ID:       fmt.Sprintf("%s_%s_%s", e[2], e[0], e[1]),
				Price:    price,
				Quantity: qty,
				Side:     side,
			},
		})
	}
	return out, nil
}

func (t *Transformer) transformBook(inst model.Instrument, raw json.RawMessage, receivedAt time.Time) ([]model.MarketEvent, error) {
	var upd struct {
		Bids [][]string `json:"b"`
		Asks [][]string `json:"a"`
	}
	// Kraken book updates arrive as a plain object keyed "b"/"a", not
	// wrapped, so unmarshal permissively and tolerate either key missing.
	if err := json.Unmarshal(raw, &upd); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	bids, err := levels(upd.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := levels(upd.Asks)
	if err != nil {
		return nil, err
	}
	return []model.MarketEvent{{
		Exchange:   model.Kraken,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload:    model.OrderBookDelta{Bids: bids, Asks: asks},
	}}, nil
}

func levels(raw [][]string) ([]model.Level, error) {
	out := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
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
