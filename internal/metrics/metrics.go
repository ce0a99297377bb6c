// Package metrics registers the Prometheus metrics exported by calbrief.
// The serve command mounts promhttp.Handler at /metrics; CLI commands
// record into the same registry without exposing it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache metrics, labelled by cache name ("events", "messages").
var (
	// CacheRequests counts Get calls by outcome ("hit", "miss").
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calbrief_cache_requests_total",
			Help: "Total cache lookups by outcome.",
		},
		[]string{"cache", "outcome"},
	)

	// CacheFetchErrors counts failed read-through fetches. Failures are never cached.
	CacheFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calbrief_cache_fetch_errors_total",
			Help: "Total failed cache fill fetches.",
		},
		[]string{"cache"},
	)

	// CachePrefetches counts background neighbor fetches by outcome
	// ("success", "error", "skipped").
	CachePrefetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calbrief_cache_prefetch_total",
			Help: "Total background prefetch attempts by outcome.",
		},
		[]string{"cache", "outcome"},
	)

	// CacheEntries tracks the number of entries (fresh or stale) held per cache.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calbrief_cache_entries",
			Help: "Number of entries currently held by the cache.",
		},
		[]string{"cache"},
	)

	// FetchDuration observes upstream fetch latency in seconds.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calbrief_cache_fetch_duration_seconds",
			Help:    "Upstream fetch duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"cache"},
	)
)

// Auth metrics.
var (
	// AuthFlows counts interactive authorization flows by final state
	// ("done", "aborted").
	AuthFlows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calbrief_auth_flows_total",
			Help: "Total interactive authorization flows by outcome.",
		},
		[]string{"outcome"},
	)

	// TokenRefreshes counts refresh-token exchanges by outcome.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calbrief_token_refresh_total",
			Help: "Total refresh token exchanges by outcome.",
		},
		[]string{"outcome"},
	)
)
