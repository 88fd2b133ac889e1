// Package service assembles the production monitoring agent: live
// telemetry ingestion, cached business datasets, the JSON history
// archive, the correlation engine and the event hub, started and
// stopped as one unit.
package service
