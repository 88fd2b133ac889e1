// Package retry implements the exponential backoff curve used across the
// service: delay(n) = min(initial × 2^(n−1), max). The telemetry client
// consumes the curve directly via Config.Delay to schedule reconnection
// timers; data sources use Do for bounded fetch retries.
package retry
