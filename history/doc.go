// Package history archives effectiveness measurements to a JSON file.
//
// The archive is a single JSON array rewritten in full on every append
// via a temp file and atomic rename. Records carry a source tag so
// consumers can distinguish live measurements from synthetic fallback
// series.
package history
