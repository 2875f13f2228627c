// Package api hosts the HTTP server, middleware, and REST handlers for the
// crawl service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs to start a crawl, GET /v1/jobs to list runs.
//   - /v1/jobs/{run_id}/stop, status, result, and export/{format} per run.
package api
