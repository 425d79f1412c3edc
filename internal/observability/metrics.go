package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesIssued      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_capture", Name: "searches_issued_total", Help: "Geocoding searches actually sent to the provider"})
	SearchesSuppressed  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_capture", Name: "searches_suppressed_total", Help: "Queries below the minimum length floor"})
	SearchesCoalesced   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_capture", Name: "searches_coalesced_total", Help: "Debounce timers cancelled by a newer keystroke"})
	StaleResultsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_capture", Name: "stale_results_dropped_total", Help: "Search responses discarded because a newer query superseded them"})

	CapturesConfirmed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_capture", Name: "captures_confirmed_total", Help: "Map positions confirmed by passengers"})
	CapturesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_capture", Name: "captures_completed_total", Help: "Locations persisted, by capture context"},
		[]string{"context"},
	)
	ReverseGeocodeFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_capture", Name: "reverse_geocode_failures_total", Help: "Reverse geocode lookups that degraded to an empty address"})

	CaptureSessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "trip_capture", Name: "capture_sessions_open", Help: "Live interactive capture sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_capture", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trip_capture",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
