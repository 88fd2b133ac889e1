// Package telemetry ingests live equipment-effectiveness samples from
// the message broker.
//
// The client subscribes to a wildcard status subject and maintains the
// latest sample per production line (last-write-wins). Malformed and
// stale payloads are dropped before they reach the in-memory snapshot,
// and the combined OEE value is recomputed from its components on every
// ingest so downstream consumers never see an inconsistent figure.
//
// The client owns its reconnection policy: library auto-reconnect is
// disabled, and a lost connection drives an exponential backoff loop
// (base 5s, doubling per attempt, capped at 60s) until either the
// broker answers or the attempt budget runs out, at which point the
// client parks in a terminal Failed state.
package telemetry
