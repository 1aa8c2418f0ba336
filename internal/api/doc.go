// Package api hosts the optional status server that runs alongside a crawl.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the live engine snapshot.
//   - GET /v1/runs/{run_id} and /v1/runs/{run_id}/pages for exported results,
//     when a ResultRepository is configured.
package api
