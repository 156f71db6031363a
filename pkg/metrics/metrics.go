// Package metrics exposes the Prometheus registry shared by the news client.
// Metrics are defined next to the code that updates them (client,
// pagination, ratelimit) and registered via promauto; this package serves
// them and documents the full set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the news client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - finnews_requests_total{endpoint, status} (Counter): Upstream requests by endpoint and HTTP status
//   - finnews_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - finnews_fetch_errors_total{kind} (Counter): Failed attempts by kind (transport, http, decode, malformed, blocked)
//   - finnews_throttle_delay_seconds (Histogram): Randomized delay before each request
//   - finnews_breaker_state_changes_total{to} (Counter): Circuit breaker transitions
//
// Retry Metrics (pkg/client):
//   - finnews_retries_total{kind} (Counter): Retry attempts by error kind
//   - finnews_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - finnews_retry_exhausted_total{kind} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - finnews_pages_fetched_total{feed} (Counter): Pages requested by feed
//   - finnews_items_collected_total{feed} (Counter): Items accumulated by feed
//   - finnews_runs_total{feed, outcome} (Counter): Runs by feed and stop reason
//
// Block Metrics (pkg/ratelimit):
//   - finnews_upstream_blocks_total (Counter): 429/456 answers recorded
//   - finnews_blocked_requests_total (Counter): Requests refused during a cooldown
//   - finnews_upstream_cooldown_seconds (Gauge): Remaining cooldown
//
// Example Prometheus Queries:
//
//   # Runs cut short by errors
//   sum by (feed) (rate(finnews_runs_total{outcome="error"}[1h]))
//
//   # Items per run
//   rate(finnews_items_collected_total[1h]) / sum by (feed) (rate(finnews_runs_total[1h]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(finnews_request_duration_seconds_bucket[5m]))
//
//   # Blocked by upstream
//   finnews_upstream_cooldown_seconds > 0
