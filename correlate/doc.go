// Package correlate joins live line telemetry with the cached business
// datasets (process orders, QA results, compliance records) into one
// production snapshot.
//
// Telemetry is force-refreshed on every snapshot; business datasets are
// served from cache and degrade to empty rather than failing the whole
// view. Orders join to their work center's telemetry, with an explicit
// no-data placeholder when the line is silent, and an empty archive is
// backfilled with a clearly tagged synthetic series.
package correlate
