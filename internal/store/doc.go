// Package store defines interfaces for persistence dependencies (the run
// ledger that records each gathering run, its phases, and final progress
// counters). Implementations live in other packages; this package must not
// import database drivers or concrete clients.
package store
