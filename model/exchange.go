package model

// ExchangeID is the stable string identifier for a supported exchange
// connection group. Spot and derivative books on the same venue are
// distinct ids because they route through distinct hosts and connectors.
type ExchangeID string

const (
	BinanceSpot       ExchangeID = "binance_spot"
	BinanceFuturesUsd ExchangeID = "binance_futures_usd"
	Bybit             ExchangeID = "bybit"
	Kucoin            ExchangeID = "kucoin"
	Okx               ExchangeID = "okx"
	Kraken            ExchangeID = "kraken"
	Coinbase          ExchangeID = "coinbase"
)

func (e ExchangeID) String() string { return string(e) }
