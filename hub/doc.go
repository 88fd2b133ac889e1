// Package hub fans production events out to in-process subscribers and,
// through the optional WebSocket bridge, to external dashboards.
//
// Subscriptions are pattern based over /-separated topics ("oee/*",
// "system/heartbeat"). Delivery is synchronous and in registration
// order, with panicking listeners isolated so one bad subscriber never
// silences the rest.
package hub
