package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceauth",
		Name:      "verifications_total",
		Help:      "Total number of verification decisions by outcome",
	}, []string{"outcome"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceauth",
		Name:      "enrollments_total",
		Help:      "Total number of enrollment attempts by result",
	}, []string{"result"})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faceauth",
		Name:      "match_duration_seconds",
		Help:      "Duration of full template-store match scans",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	TemplatesScanned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faceauth",
		Name:      "templates_scanned",
		Help:      "Number of templates visited per match scan",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	LivenessSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceauth",
		Name:      "liveness_sessions_total",
		Help:      "Liveness sessions by terminal state",
	}, []string{"state"})

	ActiveCaptureSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceauth",
		Name:      "active_capture_sessions",
		Help:      "Number of capture sessions currently held",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceauth",
		Name:      "inference_duration_seconds",
		Help:      "Duration of vision inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceauth",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceauth",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
