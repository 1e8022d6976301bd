package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ridematch"

var (
	TripTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "trip_transitions_total", Help: "Persisted trip state transitions"},
		[]string{"status"},
	)
	TripRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "trip_rejections_total", Help: "Lifecycle operations rejected by a business rule"},
		[]string{"operation", "code"},
	)
	RouteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "route_requests_total", Help: "Route provider calls by outcome"},
		[]string{"provider", "outcome"},
	)
	RouteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "route_latency_seconds", Help: "Route provider latency", Buckets: prometheus.DefBuckets},
		[]string{"provider"},
	)
	CandidatesFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "candidates_found", Help: "Nearby drivers returned per search",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "socket_connections", Help: "Open real-time connections on this instance"})
	FanoutDropped     = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "fanout_dropped_total", Help: "Real-time messages dropped"},
		[]string{"reason"},
	)
	PresenceMode = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "presence_shared", Help: "1 while presence is served by the shared cache, 0 in local fallback"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// GinMetrics records request count and latency labelled by route template.
func GinMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
