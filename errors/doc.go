// Package errors defines the error taxonomy shared by every component:
// classified errors (transient, invalid, fatal), standard sentinel values
// for broker, ingestion, and data-source failures, and wrap helpers that
// produce "component.method: action failed" messages.
//
// Propagation policy:
//   - Ingestion errors (malformed payload, stale sample) are recovered at
//     the point of receipt and never escape the telemetry client.
//   - Connectivity errors surface only as connection state, never as
//     returned errors from snapshot reads.
//   - Data-source fetch and update errors propagate as classified errors
//     so the correlation layer can degrade per dataset. Timeouts carry the
//     distinct ErrFetchTimeout sentinel (see IsTimeout).
package errors
