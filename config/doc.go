// Package config loads and validates the application configuration:
// broker connection, telemetry ingestion thresholds, history log
// location, hub fan-out settings, and the declarative SourceConfig
// map describing each logical dataset (orders, qa, compliance, oee).
//
// Configuration is a JSON file with environment-variable overrides for
// connection settings (PHARMA_BROKER_URL and friends). SourceConfig
// values are immutable after load.
package config
