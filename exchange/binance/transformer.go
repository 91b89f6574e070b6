package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cryptostream/connector"
	"cryptostream/model"
)

// Transformer holds the routing table installed during the subscribe
// handshake; it never rebuilds the exchange's own symbol spelling,
// looking up the inbound id instead.
type Transformer struct {
	table    *connector.Table
	exchange model.ExchangeID
}

func newTransformer(exchange model.ExchangeID) *Transformer {
	return &Transformer{table: connector.NewTable(), exchange: exchange}
}

// InstallRoute implements connector.Transformer.
func (t *Transformer) InstallRoute(id model.SubscriptionID, sub model.Subscription) {
	t.table.InstallRoute(id, sub)
}

// tradeFrame mirrors Binance's combined-stream trade event.
type tradeFrame struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
	IsBuyer   bool   `json:"m"` // true if the buyer is the market maker
}

type klineFrame struct {
	Event string `json:"e"`
	K     struct {
		StartTime int64  `json:"t"`
		EndTime   int64  `json:"T"`
		Symbol    string `json:"s"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Trades    int64  `json:"n"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

type bookTickerFrame struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type depthFrame struct {
	Event         string     `json:"e"`
	Symbol        string     `json:"s"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type forceOrderFrame struct {
	Event string `json:"e"`
	Order struct {
		Symbol string `json:"s"`
		Side   string `json:"S"`
		Qty    string `json:"q"`
		Price  string `json:"p"`
		Time   int64  `json:"T"`
	} `json:"o"`
}

func (t *Transformer) Transform(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var probe struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}

	switch probe.Event {
	case "trade":
		return t.transformTrade(frame, receivedAt)
	case "kline":
		return t.transformKline(frame, receivedAt)
	case "depthUpdate":
		return t.transformDepth(frame, receivedAt)
	case "forceOrder":
		return t.transformForceOrder(frame, receivedAt)
	default:
		if probe.Event == "" && probe.Symbol != "" {
			// bookTicker frames carry no "e" field.
			return t.transformBookTicker(frame, receivedAt)
		}
		return nil, nil
	}
}

func subIDForSymbol(symbol, suffix string) model.SubscriptionID {
	return model.SubscriptionID(toLower(symbol) + suffix)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func (t *Transformer) transformTrade(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var f tradeFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	id := subIDForSymbol(f.Symbol, "@trade")
	inst, _, ok := t.table.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubscription, id)
	}
	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q", model.ErrParse, f.Price)
	}
	qty, err := decimal.NewFromString(f.Qty)
	if err != nil {
		return nil, fmt.Errorf("%w: qty %q", model.ErrParse, f.Qty)
	}
	// Binance expresses side as "is buyer the maker" (m); aggressor=buyer
	// is the inverse of that flag.
	side := model.Buy
	if f.IsBuyer {
		side = model.Sell
	}
	ev := model.MarketEvent{
		Exchange:   t.exchange,
		Instrument: inst,
		ReceivedAt: receivedAt,
		ExchangeTS: time.UnixMilli(f.TradeTime),
		Payload: model.Trade{
			ID:       fmt.Sprint(f.TradeID),
			Price:    price,
			Quantity: qty,
			Side:     side,
		},
	}
	return []model.MarketEvent{ev}, nil
}

func (t *Transformer) transformKline(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var f klineFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	// kline stream names embed the interval; the lookup below tries each
	// known interval suffix for this symbol rather than require the
	// caller to know which one applies, since Binance's frame ("s") does
	// not carry it. For a single-interval subscription batch (the common
	// case) this resolves uniquely.
	inst, ok := resolveKlineRoute(t.table, f.K.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: kline %s", model.ErrUnknownSubscription, f.K.Symbol)
	}
	open, e1 := decimal.NewFromString(f.K.Open)
	high, e2 := decimal.NewFromString(f.K.High)
	low, e3 := decimal.NewFromString(f.K.Low)
	cls, e4 := decimal.NewFromString(f.K.Close)
	vol, e5 := decimal.NewFromString(f.K.Volume)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
		return nil, fmt.Errorf("%w: kline numeric field", model.ErrParse)
	}
	ev := model.MarketEvent{
		Exchange:   t.exchange,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload: model.Candle{
			Open:       open,
			High:       high,
			Low:        low,
			Close:      cls,
			Volume:     vol,
			TradeCount: f.K.Trades,
			StartTime:  time.UnixMilli(f.K.StartTime),
			EndTime:    time.UnixMilli(f.K.EndTime),
			Closed:     f.K.Closed,
		},
	}
	return []model.MarketEvent{ev}, nil
}

// resolveKlineRoute tries the known interval suffixes in turn; connectors
// build the SubscriptionID as "<symbol>@kline_<interval>" and Binance's
// own frame never echoes it, so the Transformer recovers it this way
// instead of rebuilding the exchange symbol (which would violate the
// one-way normalization rule for the part we *can* look up).
func resolveKlineRoute(table *connector.Table, symbol string) (model.Instrument, bool) {
	for _, iv := range []string{"1m", "5m", "15m", "1h", "1d"} {
		id := model.SubscriptionID(toLower(symbol) + "@kline_" + iv)
		if inst, _, ok := table.Resolve(id); ok {
			return inst, true
		}
	}
	return model.Instrument{}, false
}

func (t *Transformer) transformBookTicker(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var f bookTickerFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	id := subIDForSymbol(f.Symbol, "@bookTicker")
	inst, _, ok := t.table.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubscription, id)
	}
	bidP, e1 := decimal.NewFromString(f.BidPrice)
	bidQ, e2 := decimal.NewFromString(f.BidQty)
	askP, e3 := decimal.NewFromString(f.AskPrice)
	askQ, e4 := decimal.NewFromString(f.AskQty)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return nil, fmt.Errorf("%w: bookTicker numeric field", model.ErrParse)
	}
	ev := model.MarketEvent{
		Exchange:   t.exchange,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload: model.OrderBookL1{
			BestBid: model.Level{Price: bidP, Quantity: bidQ},
			BestAsk: model.Level{Price: askP, Quantity: askQ},
		},
	}
	return []model.MarketEvent{ev}, nil
}

func (t *Transformer) transformDepth(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var f depthFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	id := subIDForSymbol(f.Symbol, "@depth@100ms")
	inst, _, ok := t.table.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubscription, id)
	}
	bids, err := levels(f.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := levels(f.Asks)
	if err != nil {
		return nil, err
	}
	ev := model.MarketEvent{
		Exchange:   t.exchange,
		Instrument: inst,
		ReceivedAt: receivedAt,
		Payload: model.OrderBookDelta{
			Sequence: uint64(f.FinalUpdateID),
			Bids:     bids,
			Asks:     asks,
		},
	}
	return []model.MarketEvent{ev}, nil
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

func (t *Transformer) transformForceOrder(frame []byte, receivedAt time.Time) ([]model.MarketEvent, error) {
	var f forceOrderFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	id := subIDForSymbol(f.Order.Symbol, "@forceOrder")
	inst, _, ok := t.table.Resolve(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownSubscription, id)
	}
	price, e1 := decimal.NewFromString(f.Order.Price)
	qty, e2 := decimal.NewFromString(f.Order.Qty)
	if e1 != nil || e2 != nil {
		return nil, fmt.Errorf("%w: forceOrder numeric field", model.ErrParse)
	}
	side := model.Sell
	if f.Order.Side == "BUY" {
		side = model.Buy
	}
	ev := model.MarketEvent{
		Exchange:   t.exchange,
		Instrument: inst,
		ReceivedAt: receivedAt,
		ExchangeTS: time.UnixMilli(f.Order.Time),
		Payload: model.Liquidation{
			Side:     side,
			Price:    price,
			Quantity: qty,
			Time:     time.UnixMilli(f.Order.Time),
		},
	}
	return []model.MarketEvent{ev}, nil
}
