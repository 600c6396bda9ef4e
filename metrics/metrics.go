// Package metrics holds the Prometheus collectors for the matching engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Voting
	VotesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupswipe_votes_recorded_total",
			Help: "Total number of accepted votes",
		},
		[]string{"vote_type"}, // LIKE, DISLIKE
	)

	DuplicateVotes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_duplicate_votes_total",
			Help: "Total number of votes rejected because one already existed",
		},
	)

	// Consensus and matches
	ConsensusChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupswipe_consensus_checks_total",
			Help: "Total number of consensus evaluations by outcome",
		},
		[]string{"outcome"}, // match, existing, pending
	)

	MatchesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_matches_created_total",
			Help: "Total number of matches created",
		},
	)

	MatchRacesResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_match_races_resolved_total",
			Help: "Total number of concurrent match creations that lost and returned the existing match",
		},
	)

	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_match_notifications_sent_total",
			Help: "Total number of match notifications delivered to the notifier",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_match_notification_failures_total",
			Help: "Total number of match notifications that failed",
		},
	)

	// Membership
	MembersSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_members_swept_total",
			Help: "Total number of members marked inactive by the sweep",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "groupswipe_sweep_duration_seconds",
			Help:    "Duration of a full inactivity sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Media resolution
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "groupswipe_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupswipe_circuit_breaker_requests_total",
			Help: "Requests passing through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupswipe_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	MediaResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupswipe_media_resolutions_total",
			Help: "Media resolutions by operation and source",
		},
		[]string{"operation", "source"}, // source: upstream, cache, unavailable
	)

	MediaCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_media_cache_hits_total",
			Help: "Media cache hits",
		},
	)

	MediaCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupswipe_media_cache_misses_total",
			Help: "Media cache misses",
		},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupswipe_upstream_request_duration_seconds",
			Help:    "Latency of media provider requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupswipe_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupswipe_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "groupswipe_socket_connections",
			Help: "Currently connected socket.io clients",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordVote counts an accepted vote, or a duplicate when accepted is false.
func RecordVote(voteType string, accepted bool) {
	if !accepted {
		DuplicateVotes.Inc()
		return
	}
	VotesRecorded.WithLabelValues(voteType).Inc()
}

// RecordCacheLookup counts a media cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		MediaCacheHits.Inc()
		return
	}
	MediaCacheMisses.Inc()
}
