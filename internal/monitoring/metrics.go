// Package monitoring exposes Prometheus metrics and health checks.
package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector manages Prometheus metrics for a service. Each collector
// owns its registry so several can coexist in one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge
	serviceInfo         *prometheus.GaugeVec

	ShapefileImports   *prometheus.CounterVec
	ShapefileDuration  *prometheus.HistogramVec
	EmailsSent         *prometheus.CounterVec
	LayerCacheRequests *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector for a service
func NewMetricsCollector(serviceName, version string) *MetricsCollector {
	name := strings.ReplaceAll(serviceName, "-", "_")
	mc := &MetricsCollector{
		serviceName: name,
		registry:    prometheus.NewRegistry(),
	}

	mc.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	mc.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	mc.activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: name + "_active_connections",
			Help: "Number of active connections",
		},
	)
	mc.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_service_info",
			Help: "Service information",
		},
		[]string{"version"},
	)

	mc.ShapefileImports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_shapefile_operations_total",
			Help: "Shapefile pipeline runs by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	mc.ShapefileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_shapefile_operation_duration_seconds",
			Help:    "Shapefile pipeline run time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"operation"},
	)
	mc.EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_emails_total",
			Help: "Outgoing e-mails by template and outcome",
		},
		[]string{"template", "outcome"},
	)
	mc.LayerCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_layer_cache_requests_total",
			Help: "Layer cache lookups by result",
		},
		[]string{"result"},
	)

	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mc.httpRequestsTotal,
		mc.httpRequestDuration,
		mc.activeConnections,
		mc.serviceInfo,
		mc.ShapefileImports,
		mc.ShapefileDuration,
		mc.EmailsSent,
		mc.LayerCacheRequests,
	)
	mc.serviceInfo.WithLabelValues(version).Set(1)

	return mc
}

// Registry returns the collector's registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// MetricsMiddleware returns middleware that collects HTTP metrics
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		mc.activeConnections.Inc()
		defer mc.activeConnections.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		mc.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveShapefile records one run of a shapefile pipeline step
func (mc *MetricsCollector) ObserveShapefile(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	mc.ShapefileImports.WithLabelValues(operation, outcome).Inc()
	mc.ShapefileDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveEmail records one e-mail delivery attempt
func (mc *MetricsCollector) ObserveEmail(template string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	mc.EmailsSent.WithLabelValues(template, outcome).Inc()
}
