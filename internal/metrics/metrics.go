// Package metrics provides Prometheus instrumentation for the alert monitor,
// the notifier and the ops HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts monitor ticks by outcome ("ok", "store_error").
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyalert_monitor_ticks_total",
		Help: "Total monitor ticks by outcome",
	}, []string{"outcome"})

	// TickDuration tracks how long a monitor tick takes end to end.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyalert_monitor_tick_duration_seconds",
		Help:    "Monitor tick duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// ActiveMarkets is the number of active tracked markets seen by the last tick.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyalert_active_markets",
		Help: "Active tracked markets at the last tick",
	})

	// MissingTokenMarkets is the number of active markets skipped for lack of a feed token.
	MissingTokenMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyalert_missing_token_markets",
		Help: "Active tracked markets without a feed token at the last tick",
	})

	// BatchesTotal counts price batches by outcome ("ok", "error").
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyalert_price_batches_total",
		Help: "Total price batches requested by outcome",
	}, []string{"outcome"})

	// AlertsFiredTotal counts triggers that fired, by condition.
	AlertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyalert_alerts_fired_total",
		Help: "Total alerts fired by condition",
	}, []string{"condition"})

	// NotificationsTotal counts alert deliveries by outcome ("sent", "failed").
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyalert_notifications_total",
		Help: "Total alert deliveries by outcome",
	}, []string{"outcome"})

	// BotCommandsTotal counts bot interactions by command and outcome.
	BotCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyalert_bot_commands_total",
		Help: "Total bot commands and callbacks by outcome",
	}, []string{"command", "outcome"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyalert_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyalert_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics. The
// path label is the matched route pattern, not the raw URL.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
