// Command marketstream is a minimal example binary: load config, start
// logging and metrics, subscribe to a handful of streams across exchanges,
// and print every normalized event to stdout until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "cryptostream/exchange/binance"
	_ "cryptostream/exchange/bybit"
	_ "cryptostream/exchange/coinbase"
	_ "cryptostream/exchange/kraken"
	_ "cryptostream/exchange/kucoin"
	_ "cryptostream/exchange/okx"

	"cryptostream/internal/config"
	"cryptostream/internal/metrics"
	"cryptostream/logger"
	"cryptostream/model"
	"cryptostream/streambuilder"
	"cryptostream/streammux"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to YAML config")
	flag.Parse()

	_ = godotenv.Load()

	log := logger.GetLogger().WithComponent("marketstream")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Warn("using default stream config; config file not loaded")
		cfg = &config.Config{}
	}
	if cfg.Logging.Level != "" {
		if err := logger.GetLogger().Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
			log.WithError(err).Warn("invalid logging config, keeping defaults")
		}
	}
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streams, err := streambuilder.New().
		WithConfig(cfg.Stream.ToStreamConfig()).
		SubscribeExchange(model.BinanceSpot,
			model.SubscriptionSpec{Base: "BTC", Quote: "USDT", InstrumentKind: model.Spot, DataKind: model.KindTrade},
			model.SubscriptionSpec{Base: "ETH", Quote: "USDT", InstrumentKind: model.Spot, DataKind: model.KindOrderBookL1},
		).
		SubscribeExchange(model.Kraken,
			model.SubscriptionSpec{Base: "BTC", Quote: "USD", InstrumentKind: model.Spot, DataKind: model.KindCandle, CandleInterval: model.Interval1m},
		).
		Init(ctx)
	if err != nil {
		log.WithError(err).Error("failed to initialize streams")
		os.Exit(1)
	}

	go reportHealth(ctx, log)

	log.Info("streams initialized, consuming events")
	for keyed := range streams.JoinMap(ctx) {
		printEvent(keyed)
	}
	log.Info("shutting down")
}

// reportHealth logs a periodic warn/error tally gathered across every
// stream/supervisor component, so an operator tailing stdout sees drift
// even when nothing else is currently logging.
func reportHealth(ctx context.Context, log *logger.Entry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warns, errs := logger.Counters()
			log.WithFields(logger.Fields{"warns": warns, "errors": errs}).Info("health")
		}
	}
}

func printEvent(k streammux.Keyed) {
	fmt.Printf("[%s] %s %s %+v\n", time.Now().Format(time.RFC3339), k.Exchange, k.Event.Instrument, k.Event.Payload)
}
