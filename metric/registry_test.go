package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistryRegistersCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.CoreMetrics())
	require.NotNil(t, registry.PrometheusRegistry())

	// Core metrics must be gatherable without error.
	registry.Metrics.RecordBrokerStatus(true)
	registry.Metrics.RecordError("telemetry", "stale_sample")

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegisterCounterRejectsDuplicates(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pharma",
		Subsystem: "test",
		Name:      "events_total",
		Help:      "test counter",
	})

	require.NoError(t, registry.RegisterCounter("telemetry", "events", counter))

	duplicate := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pharma",
		Subsystem: "test",
		Name:      "events_total",
		Help:      "test counter",
	})
	err := registry.RegisterCounter("telemetry", "events", duplicate)
	assert.Error(t, err)
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pharma",
		Subsystem: "test",
		Name:      "cache_entries",
		Help:      "test gauge",
	})

	require.NoError(t, registry.RegisterGauge("cache", "entries", gauge))
	assert.True(t, registry.Unregister("cache", "entries"))
	assert.False(t, registry.Unregister("cache", "entries"))

	require.NoError(t, registry.RegisterGauge("cache", "entries", gauge))
}
