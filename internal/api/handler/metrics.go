package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/captals/primechain/internal/chain"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primechain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "primechain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	blocksAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "primechain_blocks_appended_total",
		Help: "Total blocks appended since process start.",
	})

	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "primechain_chain_height",
		Help: "Number of blocks in the chain.",
	})

	appendRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primechain_append_rejections_total",
		Help: "Total rejected appends by reason.",
	}, []string{"reason"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primechain_event_deliveries_total",
		Help: "Total event delivery attempts by subscriber and outcome.",
	}, []string{"subscriber", "status"})

	integrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "primechain_integrity_checks_total",
		Help: "Total periodic ledger integrity checks by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsNotifier returns a chain.Notifier that keeps the block counters
// current. It never blocks.
func MetricsNotifier() chain.Notifier {
	return chain.NotifierFunc(func(ev chain.BlockAppended) {
		blocksAppendedTotal.Inc()
		chainHeight.Set(float64(ev.Index + 1))
	})
}

// SetChainHeight sets the height gauge, typically once at startup.
func SetChainHeight(n uint64) {
	chainHeight.Set(float64(n))
}

// RecordAppendRejected records an append that did not produce a block.
func RecordAppendRejected(reason string) {
	appendRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDelivery records an event delivery attempt. Its signature matches
// notify.MetricsRecorder.
func RecordDelivery(subscriber string, success bool) {
	if success {
		deliveriesTotal.WithLabelValues(subscriber, "success").Inc()
	} else {
		deliveriesTotal.WithLabelValues(subscriber, "failure").Inc()
	}
}

// RecordIntegrityCheck records a periodic ledger verification. Its signature
// matches health.MetricsRecordFunc.
func RecordIntegrityCheck(success bool) {
	if success {
		integrityChecksTotal.WithLabelValues("pass").Inc()
	} else {
		integrityChecksTotal.WithLabelValues("fail").Inc()
	}
}
