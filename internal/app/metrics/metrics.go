package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trustcore",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustcore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trustcore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ordersSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustcore",
			Subsystem: "settlement",
			Name:      "orders_total",
			Help:      "Total number of orders by terminal outcome.",
		},
		[]string{"outcome"},
	)

	settledVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trustcore",
			Subsystem: "settlement",
			Name:      "settled_volume_usd6",
			Help:      "Cumulative settled gross volume in USD6 units.",
		},
	)

	anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustcore",
			Subsystem: "fraud",
			Name:      "anomalies_total",
			Help:      "Total number of flagged anomalies.",
		},
		[]string{"type", "blocked"},
	)

	vaultFlows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trustcore",
			Subsystem: "vault",
			Name:      "flows_usd6_total",
			Help:      "Cumulative investment vault flows in USD6 units.",
		},
		[]string{"direction"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ordersSettled,
		settledVolume,
		anomalies,
		vaultFlows,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// OrderOutcome records a terminal order transition (settled, refunded,
// cancelled). Settled orders also accumulate gross volume.
func OrderOutcome(outcome string, grossUsd6 int64) {
	ordersSettled.WithLabelValues(outcome).Inc()
	if outcome == "settled" && grossUsd6 > 0 {
		settledVolume.Add(float64(grossUsd6))
	}
}

// AnomalyFlagged records a flagged anomaly and whether it blocked the subject.
func AnomalyFlagged(anomalyType string, blocked bool) {
	b := "false"
	if blocked {
		b = "true"
	}
	anomalies.WithLabelValues(anomalyType, b).Inc()
}

// VaultFlow records a vault deposit or withdrawal amount.
func VaultFlow(direction string, amountUsd6 int64) {
	if amountUsd6 <= 0 {
		return
	}
	vaultFlows.WithLabelValues(direction).Add(float64(amountUsd6))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	switch parts[0] {
	case "tenants", "orders", "suppliers", "devices":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
