// Package api hosts the HTTP server, middleware, and REST handlers of the
// listing backend. Notable routes:
//   - GET /healthz / readyz for probes; readyz pings the repository.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/listings and /api/listings/{id} for filtered reads.
//   - POST /api/add_listing for ingest; trailing slashes are accepted.
package api
