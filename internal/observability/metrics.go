// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Simulator metrics
	TransactionsProcessed *prometheus.CounterVec
	ComputeUnitsConsumed  prometheus.Histogram
	CurrentSlot           prometheus.Gauge

	// Provider metrics
	SendAndConfirmLatency *prometheus.HistogramVec
	SendAndConfirmErrors  *prometheus.CounterVec
	AccountLookups        *prometheus.CounterVec
	RPCCallLatency        *prometheus.HistogramVec

	// Log stream metrics
	LogSubscribers   prometheus.Gauge
	LogNotifications prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	ReceiptsStored  *prometheus.CounterVec

	// Health metrics
	LastScenarioSuccess prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg. A nil reg
// uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "bankrun"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Simulator metrics
		TransactionsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bank",
			Name:      "transactions_processed_total",
			Help:      "Total number of executed transactions by outcome",
		}, []string{"status"}),
		ComputeUnitsConsumed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bank",
			Name:      "compute_units_consumed",
			Help:      "Compute units consumed per transaction",
			Buckets:   []float64{150, 1_000, 5_000, 20_000, 50_000, 100_000, 200_000},
		}),
		CurrentSlot: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bank",
			Name:      "current_slot",
			Help:      "Slot of the most recently executed transaction",
		}),

		// Provider metrics
		SendAndConfirmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "send_and_confirm_latency_seconds",
			Help:      "sendAndConfirm latency in seconds by backend and encoding",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "encoding"}),
		SendAndConfirmErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "send_and_confirm_errors_total",
			Help:      "Total number of failed sendAndConfirm calls by backend",
		}, []string{"backend"}),
		AccountLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "account_lookups_total",
			Help:      "Total number of account lookups by result",
		}, []string{"result"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Log stream metrics
		LogSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "logstream",
			Name:      "subscribers",
			Help:      "Number of connected log subscribers",
		}),
		LogNotifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logstream",
			Name:      "notifications_sent_total",
			Help:      "Total number of log notifications delivered",
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		ReceiptsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "receipts_stored_total",
			Help:      "Total number of transaction receipts persisted by store",
		}, []string{"store"}),

		// Health metrics
		LastScenarioSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scenario_timestamp",
			Help:      "Unix timestamp of last successful scenario run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTransaction records an executed transaction.
func RecordTransaction(failed bool, slot, computeUnits uint64) {
	status := "success"
	if failed {
		status = "failed"
	}
	DefaultMetrics.TransactionsProcessed.WithLabelValues(status).Inc()
	DefaultMetrics.ComputeUnitsConsumed.Observe(float64(computeUnits))
	DefaultMetrics.CurrentSlot.Set(float64(slot))
}

// RecordSendAndConfirm records a sendAndConfirm call.
func RecordSendAndConfirm(backend, encoding string, seconds float64, err error) {
	DefaultMetrics.SendAndConfirmLatency.WithLabelValues(backend, encoding).Observe(seconds)
	if err != nil {
		DefaultMetrics.SendAndConfirmErrors.WithLabelValues(backend).Inc()
	}
}

// RecordAccountLookup records an account lookup by result (found, not_found, error).
func RecordAccountLookup(result string) {
	DefaultMetrics.AccountLookups.WithLabelValues(result).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateLogSubscribers sets the connected log subscriber gauge.
func UpdateLogSubscribers(n int) {
	DefaultMetrics.LogSubscribers.Set(float64(n))
}

// RecordLogNotification increments the delivered log notification counter.
func RecordLogNotification() {
	DefaultMetrics.LogNotifications.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordReceiptStored increments the receipts stored counter.
func RecordReceiptStored(store string) {
	DefaultMetrics.ReceiptsStored.WithLabelValues(store).Inc()
}

// RecordScenarioSuccess stamps the last successful scenario run.
func RecordScenarioSuccess(unixSeconds int64) {
	DefaultMetrics.LastScenarioSuccess.Set(float64(unixSeconds))
}
