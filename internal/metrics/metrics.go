package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LicenseCacheLookups counts license cache lookups by result: hit | miss | error.
	LicenseCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_cache_lookups_total",
			Help: "License verification cache lookups by result.",
		},
		[]string{"result"},
	)

	// DeploymentPolls counts finished poll loops by outcome: ready | error | timeout.
	DeploymentPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployment_polls_total",
			Help: "Finished deployment poll loops by outcome.",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 300},
		},
		[]string{"path", "method", "status_code"},
	)

	registerOnce sync.Once
)

// Register is called once in main() to register metrics.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LicenseCacheLookups,
			DeploymentPolls,
			HTTPRequestDuration,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures request latency. The route template is used as the
// path label so ids in URLs don't blow up cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
