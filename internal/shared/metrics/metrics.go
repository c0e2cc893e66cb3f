package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	analysesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyses_started_total",
		Help: "Analysis runs started.",
	})

	analysesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyses_completed_total",
		Help: "Analysis runs that finished successfully.",
	})

	analysesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyses_failed_total",
		Help: "Analysis runs that ended in failure.",
	})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_duration_seconds",
		Help:    "End-to-end analysis pipeline duration in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// AnalysisStarted records the start of a pipeline run.
func AnalysisStarted() {
	analysesStarted.Inc()
}

// AnalysisCompleted records a successful pipeline run and its duration.
func AnalysisCompleted(elapsed time.Duration) {
	analysesCompleted.Inc()
	analysisDuration.Observe(elapsed.Seconds())
}

// AnalysisFailed records a failed pipeline run and its duration.
func AnalysisFailed(elapsed time.Duration) {
	analysesFailed.Inc()
	analysisDuration.Observe(elapsed.Seconds())
}

// HTTP is gin middleware that records request counts and latency.
// The route template is used as the path label to keep cardinality bounded.
func HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
