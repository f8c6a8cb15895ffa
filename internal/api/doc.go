// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/records for the persisted contest records.
//   - POST /v1/runs to start a batch pass, GET /v1/runs/last for its report.
package api
