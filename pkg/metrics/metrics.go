package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "dlq"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Publisher = "publisher"
	Relay     = "relay"
)

// Rejection reasons for publish calls that never reach the transport.
const (
	ReasonInvalidArguments = "invalid_arguments"
	ReasonSerialization    = "serialization"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple publisher instances.
type Labels struct {
	Service       string // Name of the host service that owns the DLQ
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Service != "" {
		labels["service"] = l.Service
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Transport outcomes
	published       *prometheus.CounterVec   // by transport, status
	publishDuration *prometheus.HistogramVec // by transport
	publishInFlight prometheus.Gauge

	// Calls rejected before reaching the transport
	rejected *prometheus.CounterVec // by reason

	// Relay requests
	relayRequests *prometheus.CounterVec // by code
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "published_total",
			Help:      "Total number of failure events sent to the dead letter queue by transport and status",
		}, []string{"transport", "status"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "publish_duration_seconds",
			Help:      "Time taken by the transport to accept a dead letter queue message",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"transport"}),
		publishInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "in_flight",
			Help:      "Number of transport calls currently in progress",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "rejected_total",
			Help:      "Total number of publish calls rejected before reaching the transport by reason",
		}, []string{"reason"}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Relay,
			Name:      "requests_total",
			Help:      "Total number of relay requests by HTTP status code",
		}, []string{"code"}),
	}

	err := errors.Join(
		reg.Register(m.published),
		reg.Register(m.publishDuration),
		reg.Register(m.publishInFlight),
		reg.Register(m.rejected),
		reg.Register(m.relayRequests),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// IncPublishInFlight increments the in-flight transport call gauge.
func (m *Metrics) IncPublishInFlight() {
	if m == nil {
		return
	}
	m.publishInFlight.Inc()
}

// DecPublishInFlight decrements the in-flight transport call gauge.
func (m *Metrics) DecPublishInFlight() {
	if m == nil {
		return
	}
	m.publishInFlight.Dec()
}

// RecordPublish records a transport call outcome with duration.
// Pass nil error for successful publishes, non-nil for failures.
func (m *Metrics) RecordPublish(transport string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.published.WithLabelValues(transport, status).Inc()
	m.publishDuration.WithLabelValues(transport).Observe(durationSeconds)
}

// IncRejected increments the rejected call counter for the given reason.
func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordRelayRequest records a relay request by its response status code.
func (m *Metrics) RecordRelayRequest(code string) {
	if m == nil {
		return
	}
	m.relayRequests.WithLabelValues(code).Inc()
}
