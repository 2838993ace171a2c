// Package progress provides the event primitives, the unbounded conduit, and
// the aggregator that phase collaborators use to report gathering progress.
// Producers push events without ever blocking; a single aggregator consumes
// them in arrival order, keeps one counter per category, and pushes each
// update to pluggable displays such as a terminal renderer or Prometheus.
package progress
