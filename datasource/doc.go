// Package datasource provides uniform access to the business datasets
// the correlation engine joins against live telemetry: process orders,
// QA results, compliance records, and the telemetry snapshot itself.
//
// Each dataset is declared in configuration as one of four variants
// (file, api, rest, telemetry) and accessed through the DataSource
// contract: Fetch, Update, Name, Cleanup. Read-only variants fail
// Update with errors.ErrReadOnlySource rather than pretending to write.
package datasource
