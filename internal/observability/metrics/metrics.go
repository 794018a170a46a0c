package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentkit"

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by handler, method and status code.",
	}, []string{"handler", "method", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})

	walletOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "operations_total",
		Help:      "Wallet provider operations partitioned by chain, operation and outcome.",
	}, []string{"chain", "operation", "status"})

	walletDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "operation_duration_seconds",
		Help:      "Latency of wallet provider operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "operation"})

	receiptOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "receipts",
		Name:      "tracked_total",
		Help:      "Receipt tracking outcomes partitioned by chain and status.",
	}, []string{"chain", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		walletOperations,
		walletDuration,
		receiptOutcomes,
	)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveWalletOperation records the outcome and latency of a wallet call.
func ObserveWalletOperation(chain, operation, status string, duration time.Duration) {
	walletOperations.WithLabelValues(chain, operation, status).Inc()
	walletDuration.WithLabelValues(chain, operation).Observe(duration.Seconds())
}

// ObserveReceipt records the final state reached by a tracked transaction.
func ObserveReceipt(chain, status string) {
	receiptOutcomes.WithLabelValues(chain, status).Inc()
}

// Registry exposes the collector registry, mostly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
