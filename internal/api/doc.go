// Package api hosts the operator HTTP surface of a crawl run. Routes:
//   - GET /healthz and /readyz for probes; readiness flips once the backend is up.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the current run state and, once finished, its summary.
package api
