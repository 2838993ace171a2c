// Package api hosts the status HTTP server of a gathering run. Routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live aggregator counters of the attached run.
//   - GET /v1/runs and /v1/runs/{run_id} for the run ledger via the
//     store.RunRepository interface.
package api
