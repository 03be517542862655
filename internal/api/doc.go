// Package api hosts the operator HTTP surface. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/sessions for listing, starting, confirming, declining and stopping
//     user searches.
//   - GET /v1/stats for the health monitor snapshot.
//   - GET /v1/cycles and /v1/cycles/{cycle_id}/sources for cycle history.
package api
