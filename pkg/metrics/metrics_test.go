package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLabels_toPrometheusLabels(t *testing.T) {
	tests := []struct {
		name     string
		labels   Labels
		expected prometheus.Labels
	}{
		{
			name:     "empty labels",
			labels:   Labels{},
			expected: prometheus.Labels{},
		},
		{
			name: "all labels set",
			labels: Labels{
				Service:       "orders-handler",
				Environment:   "production",
				Region:        "us-east-1",
				CloudProvider: "aws",
			},
			expected: prometheus.Labels{
				"service":        "orders-handler",
				"environment":    "production",
				"region":         "us-east-1",
				"cloud_provider": "aws",
			},
		},
		{
			name: "partial labels",
			labels: Labels{
				Service:     "orders-handler",
				Environment: "staging",
			},
			expected: prometheus.Labels{
				"service":     "orders-handler",
				"environment": "staging",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.labels.toPrometheusLabels()
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	// Gauges are gathered even without observations
	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewWithLabels(reg, Labels{Service: "orders-handler", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.IncPublishInFlight()

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() != "dlq_publisher_in_flight" {
			continue
		}
		found = true
		require.NotEmpty(t, mf.GetMetric())

		labelMap := make(map[string]string)
		for _, label := range mf.GetMetric()[0].GetLabel() {
			labelMap[label.GetName()] = label.GetValue()
		}
		require.Equal(t, "orders-handler", labelMap["service"])
		require.Equal(t, "test", labelMap["environment"])
	}
	require.True(t, found, "dlq_publisher_in_flight not gathered")
}

func TestNew_RegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	// Second registration should fail (duplicate metrics)
	m, err := New(reg)
	require.Nil(t, m, "expected nil metrics on duplicate registration")

	var alreadyRegistered prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &alreadyRegistered)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.IncPublishInFlight()
		m.DecPublishInFlight()
		m.RecordPublish("sqs", nil, 0.1)
		m.IncRejected(ReasonInvalidArguments)
		m.RecordRelayRequest("202")
	})
}

func TestMetrics_RecordPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordPublish("sqs", nil, 0.01)
	m.RecordPublish("sqs", nil, 0.02)
	m.RecordPublish("sqs", errors.New("throttled"), 0.5)
	m.RecordPublish("kafka", nil, 0.03)

	require.Equal(t, float64(2), testutil.ToFloat64(m.published.WithLabelValues("sqs", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.published.WithLabelValues("sqs", StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.published.WithLabelValues("kafka", StatusSuccess)))
	require.Equal(t, 2, testutil.CollectAndCount(m.publishDuration))
}

func TestMetrics_InFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncPublishInFlight()
	m.IncPublishInFlight()
	m.DecPublishInFlight()

	require.Equal(t, float64(1), testutil.ToFloat64(m.publishInFlight))
}

func TestMetrics_IncRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncRejected(ReasonInvalidArguments)
	m.IncRejected(ReasonInvalidArguments)
	m.IncRejected(ReasonSerialization)

	require.Equal(t, float64(2), testutil.ToFloat64(m.rejected.WithLabelValues(ReasonInvalidArguments)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rejected.WithLabelValues(ReasonSerialization)))
}

func TestMetrics_RecordRelayRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordRelayRequest("202")
	m.RecordRelayRequest("400")
	m.RecordRelayRequest("202")

	require.Equal(t, float64(2), testutil.ToFloat64(m.relayRequests.WithLabelValues("202")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.relayRequests.WithLabelValues("400")))
}
