package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics. A nil
// *Metrics is safe to pass around; recording is skipped at call sites.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec
	solanaRPCRetries      *prometheus.CounterVec

	// Fractionalization Metrics
	fractionalizationsTotal   *prometheus.CounterVec
	fractionalizationDuration *prometheus.HistogramVec

	// Distribution Metrics
	distributionsTotal      *prometheus.CounterVec
	distributionRecipients  *prometheus.HistogramVec
	shareTransfersTotal     *prometheus.CounterVec
	shareTransferDuration   *prometheus.HistogramVec

	// Reconciliation Metrics
	reconcileWorkflowDuration *prometheus.HistogramVec
	reconcileSignatureChecks  *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		fractionalizationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fractionalizations_total",
				Help: "Total number of NFT fractionalization attempts",
			},
			[]string{"status"},
		),
		fractionalizationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fractionalization_duration_seconds",
				Help:    "End-to-end duration of fractionalization requests in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		distributionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distributions_total",
				Help: "Total number of share distribution requests",
			},
			[]string{"status"},
		),
		distributionRecipients: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distribution_recipients",
				Help:    "Number of recipients per distribution request",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"status"},
		),
		shareTransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "share_transfers_total",
				Help: "Total number of individual share transfers",
			},
			[]string{"mint", "status"},
		),
		shareTransferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "share_transfer_duration_seconds",
				Help:    "Duration of individual share transfers in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),

		reconcileWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_workflow_duration_seconds",
				Help:    "Duration of reconciliation workflow executions in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		reconcileSignatureChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_signature_checks_total",
				Help: "Total number of persisted signatures checked against the chain",
			},
			[]string{"result"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Fractionalization metric helpers

// RecordFractionalization records a fractionalization attempt with duration.
func (m *Metrics) RecordFractionalization(status string, duration float64) {
	m.fractionalizationsTotal.WithLabelValues(status).Inc()
	m.fractionalizationDuration.WithLabelValues(status).Observe(duration)
}

// Distribution metric helpers

// RecordDistribution records a distribution request and its recipient count.
func (m *Metrics) RecordDistribution(status string, recipients int) {
	m.distributionsTotal.WithLabelValues(status).Inc()
	m.distributionRecipients.WithLabelValues(status).Observe(float64(recipients))
}

// RecordShareTransfer records one transfer within a distribution.
func (m *Metrics) RecordShareTransfer(mint, status string, duration float64) {
	m.shareTransfersTotal.WithLabelValues(mint, status).Inc()
	m.shareTransferDuration.WithLabelValues(status).Observe(duration)
}

// Reconciliation metric helpers

// RecordReconcileRun records a reconciliation workflow execution.
func (m *Metrics) RecordReconcileRun(status string, duration float64) {
	m.reconcileWorkflowDuration.WithLabelValues(status).Observe(duration)
}

// RecordSignatureCheck records the outcome of one signature verification.
func (m *Metrics) RecordSignatureCheck(result string) {
	m.reconcileSignatureChecks.WithLabelValues(result).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
