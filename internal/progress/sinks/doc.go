// Package sinks contains progress.Display implementations: an operator
// terminal view, a structured log, Prometheus gauges and a run-ledger writer.
package sinks
