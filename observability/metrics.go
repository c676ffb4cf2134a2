package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records JSON-RPC activity against the lending ledger.
type LedgerMetrics struct {
	Requests *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Metrics returns the lazily-initialised metrics registry used to record RPC
// activity. Registration panics on duplicate collectors, so the singleton is
// shared across servers.
func Metrics() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslend",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "crosslend",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(ledgerRegistry.Requests, ledgerRegistry.Errors, ledgerRegistry.Latency)
	})
	return ledgerRegistry
}
