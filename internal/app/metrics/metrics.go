package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mynews",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mynews",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mynews",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	articlesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mynews",
			Subsystem: "goals",
			Name:      "articles_read_total",
			Help:      "Article reads logged, split by first read of the URL or repeat.",
		},
		[]string{"first"},
	)

	missionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mynews",
			Subsystem: "goals",
			Name:      "missions_completed_total",
			Help:      "Missions that transitioned to completed.",
		},
		[]string{"type"},
	)

	reactionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mynews",
			Subsystem: "reactions",
			Name:      "transitions_total",
			Help:      "Reaction writes by transition kind.",
		},
		[]string{"kind"},
	)

	friendOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mynews",
			Subsystem: "friends",
			Name:      "operations_total",
			Help:      "Friend add/remove attempts by outcome.",
		},
		[]string{"op", "result"},
	)

	socialSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mynews",
			Subsystem: "social",
			Name:      "friend_subscriptions",
			Help:      "Live per-friend reaction subscriptions held by aggregators.",
		},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mynews",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Outbound calls to news, bias, extraction and summarization providers.",
		},
		[]string{"provider", "success"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mynews",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"provider"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mynews",
			Subsystem: "news",
			Name:      "cache_lookups_total",
			Help:      "News response cache lookups by result.",
		},
		[]string{"result"},
	)

	circuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mynews",
			Subsystem: "upstream",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per outbound client: 0 closed, 1 open, 2 half-open.",
		},
		[]string{"client"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		articlesRead,
		missionsCompleted,
		reactionTransitions,
		friendOps,
		socialSubscriptions,
		upstreamRequests,
		upstreamDuration,
		cacheLookups,
		circuitState,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// TrackInFlight increments the in-flight gauge and returns its release func.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveRequest records one handled request. routeTemplate is the matched
// router pattern; when empty the raw path is collapsed instead.
func ObserveRequest(method, rawPath, routeTemplate string, status int, duration time.Duration) {
	path := routeTemplate
	if path == "" {
		path = canonicalPath(rawPath)
	}
	method = strings.ToUpper(method)

	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordArticleRead counts a logged read.
func RecordArticleRead(first bool) {
	articlesRead.WithLabelValues(strconv.FormatBool(first)).Inc()
}

// RecordMissionCompleted counts a mission reaching its target.
func RecordMissionCompleted(missionType string) {
	if missionType == "" {
		missionType = "unknown"
	}
	missionsCompleted.WithLabelValues(missionType).Inc()
}

// RecordReactionTransition counts a reaction write: first, switched, deleted or unchanged.
func RecordReactionTransition(kind string) {
	reactionTransitions.WithLabelValues(kind).Inc()
}

// RecordFriendOperation counts an add/remove attempt and its outcome.
func RecordFriendOperation(op, result string) {
	friendOps.WithLabelValues(op, result).Inc()
}

// AddSocialSubscriptions adjusts the live friend subscription gauge.
func AddSocialSubscriptions(delta int) {
	socialSubscriptions.Add(float64(delta))
}

// RecordUpstreamCall records metrics for an outbound provider call.
func RecordUpstreamCall(provider string, duration time.Duration, success bool) {
	if provider == "" {
		provider = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	upstreamRequests.WithLabelValues(provider, strconv.FormatBool(success)).Inc()
	upstreamDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCacheLookup counts a news cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// SetCircuitState publishes the breaker state of a named outbound client.
func SetCircuitState(client string, state int) {
	circuitState.WithLabelValues(client).Set(float64(state))
}

// CircuitStateGauge returns the state gauge of a named outbound client.
func CircuitStateGauge(client string) prometheus.Gauge {
	return circuitState.WithLabelValues(client)
}

// canonicalPath collapses per-entity segments so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" || len(parts) == 1 {
		return "/" + parts[0]
	}
	switch {
	case len(parts) >= 3 && parts[1] == "friends" && parts[2] != "count":
		return "/v1/friends/:username"
	case len(parts) >= 4 && parts[1] == "news" && parts[2] == "bias":
		return "/v1/news/bias/:source"
	case len(parts) > 3:
		parts = parts[:3]
	}
	return "/" + strings.Join(parts, "/")
}
