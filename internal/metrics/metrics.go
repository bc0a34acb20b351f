// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific collectors.
	Registry = prometheus.NewRegistry()

	opens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cases",
			Name:      "opens_total",
			Help:      "Open attempts by terminal outcome.",
		},
		[]string{"outcome"},
	)

	verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cases",
			Name:      "verifications_total",
			Help:      "Init data verifications by result.",
		},
		[]string{"result"},
	)

	grants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cases",
			Name:      "grants_total",
			Help:      "Ledger grants by reason and whether they were replays.",
		},
		[]string{"reason", "replay"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cases",
			Name:      "ledger_duration_seconds",
			Help:      "Ledger round-trip latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"op", "status"},
	)

	auditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cases",
			Name:      "audit_dropped_total",
			Help:      "Audit records discarded because the queue was full or the write failed.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cases",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cases",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		opens,
		verifications,
		grants,
		ledgerDuration,
		auditDropped,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func OpenOutcome(outcome string) {
	opens.WithLabelValues(outcome).Inc()
}

func Verification(result string) {
	verifications.WithLabelValues(result).Inc()
}

func GrantApplied(reason string, replay bool) {
	grants.WithLabelValues(reason, strconv.FormatBool(replay)).Inc()
}

func ObserveLedger(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ledgerDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func AuditDropped() {
	auditDropped.Inc()
}

func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
