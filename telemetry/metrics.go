package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/schmeckm/Business-AI-Agentic-Pharma-MVP/metric"
)

// Metrics holds telemetry-client specific Prometheus metrics
type Metrics struct {
	samplesReceived   prometheus.Counter
	samplesMalformed  prometheus.Counter
	samplesStale      prometheus.Counter
	entitiesTracked   prometheus.Gauge
	lastSampleTime    prometheus.Gauge
	connectionState   prometheus.Gauge
	reconnectAttempts prometheus.Counter
	brokerConnected   prometheus.Gauge
}

// newMetrics registers telemetry metrics with the registry. Returns nil
// when no registry is provided; callers nil-check before recording.
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		samplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "samples_received_total",
			Help:      "Total number of telemetry samples accepted",
		}),
		samplesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "samples_malformed_total",
			Help:      "Total number of payloads dropped as malformed",
		}),
		samplesStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "samples_stale_total",
			Help:      "Total number of samples dropped as stale",
		}),
		entitiesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "entities_tracked",
			Help:      "Number of entities with a current sample",
		}),
		lastSampleTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "last_sample_timestamp_seconds",
			Help:      "Unix timestamp of the most recently accepted sample",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "connection_state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=failed)",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnection attempts scheduled",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pharma",
			Subsystem: "telemetry",
			Name:      "broker_connected",
			Help:      "Broker connection status (0=disconnected, 1=connected)",
		}),
	}

	component := "telemetry"
	registry.RegisterCounter(component, "samples_received_total", m.samplesReceived)
	registry.RegisterCounter(component, "samples_malformed_total", m.samplesMalformed)
	registry.RegisterCounter(component, "samples_stale_total", m.samplesStale)
	registry.RegisterGauge(component, "entities_tracked", m.entitiesTracked)
	registry.RegisterGauge(component, "last_sample_timestamp_seconds", m.lastSampleTime)
	registry.RegisterGauge(component, "connection_state", m.connectionState)
	registry.RegisterCounter(component, "reconnect_attempts_total", m.reconnectAttempts)
	registry.RegisterGauge(component, "broker_connected", m.brokerConnected)

	return m
}
