// Package metric provides the Prometheus metrics registry and HTTP
// exposition endpoint. Core platform metrics (service status, broker
// connectivity, error totals) are registered at construction; components
// register their own metrics through the MetricsRegistrar interface.
package metric
