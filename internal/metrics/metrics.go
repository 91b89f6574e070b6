// Registers:
//
//	#cryptostream_dropped_frames_total
//	#cryptostream_unknown_subscription_total
//	#cryptostream_parse_errors_total
//	#cryptostream_reconnects_total
//	#go_* and process_* system metrics
//
// Exposes them on :2112/metrics using Prometheus HTTP handler
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once                 sync.Once
	droppedFrames        *prometheus.CounterVec
	unknownSubscriptions *prometheus.CounterVec
	parseErrors          *prometheus.CounterVec
	reconnects           *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		droppedFrames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptostream_dropped_frames_total",
				Help: "Events discarded because a consumer channel had no free capacity",
			},
			[]string{"exchange"},
		)

		unknownSubscriptions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptostream_unknown_subscription_total",
				Help: "Data frames referencing a subscription id with no installed route",
			},
			[]string{"exchange"},
		)

		parseErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptostream_parse_errors_total",
				Help: "Data frames dropped for malformed numeric or structural fields",
			},
			[]string{"exchange"},
		)

		reconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptostream_reconnects_total",
				Help: "ExchangeStream reconnect attempts",
			},
			[]string{"exchange"},
		)

		_ = prometheus.Register(droppedFrames)
		_ = prometheus.Register(unknownSubscriptions)
		_ = prometheus.Register(parseErrors)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe("0.0.0.0:2112", nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncDroppedFrame records one event discarded by an OnFull policy.
func IncDroppedFrame(exchange string) {
	if droppedFrames != nil {
		droppedFrames.WithLabelValues(exchange).Inc()
	}
}

// IncUnknownSubscription records one data frame with no installed route.
func IncUnknownSubscription(exchange string) {
	if unknownSubscriptions != nil {
		unknownSubscriptions.WithLabelValues(exchange).Inc()
	}
}

// IncParseError records one data frame dropped for a malformed field.
func IncParseError(exchange string) {
	if parseErrors != nil {
		parseErrors.WithLabelValues(exchange).Inc()
	}
}

// IncReconnect records one reconnect attempt.
func IncReconnect(exchange string) {
	if reconnects != nil {
		reconnects.WithLabelValues(exchange).Inc()
	}
}
