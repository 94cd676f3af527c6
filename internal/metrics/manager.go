package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager records settings service metrics
type Manager interface {
	// Store Metrics
	RecordStoreOperation(operation string, success bool, duration time.Duration)
	RecordKeyReadFailure(key string)

	// Setting Metrics
	RecordSetterRejection(settingType string)
	SetSettingsCount(n int)

	// HTTP Metrics
	RecordHTTPRequest(method, route, status string, duration time.Duration)

	// Export
	Handler() http.Handler
	Middleware() func(http.Handler) http.Handler
}

// Config holds configuration for the metrics system
type Config struct {
	Enabled   bool
	Namespace string
}

// metricsManager implements Manager using a private Prometheus registry
type metricsManager struct {
	registry *prometheus.Registry

	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	keyReadFailuresTotal   *prometheus.CounterVec

	setterRejectionsTotal *prometheus.CounterVec
	settingsCount         prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager, or a no-op one when disabled
func NewManager(cfg Config) Manager {
	if !cfg.Enabled {
		return &noopManager{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "nvsettings"
	}

	m := &metricsManager{registry: prometheus.NewRegistry()}
	m.initializeMetrics(cfg.Namespace)
	return m
}

func (m *metricsManager) initializeMetrics(namespace string) {
	m.storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of persistent store operations",
		},
		[]string{"operation", "result"},
	)

	m.storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Persistent store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.keyReadFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "key_read_failures_total",
			Help:      "Stored values that could not be read and fell back to the default",
		},
		[]string{"key"},
	)

	m.setterRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "setter_rejections_total",
			Help:      "Values rejected by setting validation",
		},
		[]string{"type"},
	)

	m.settingsCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settings",
			Name:      "count",
			Help:      "Number of settings in the registry",
		},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		m.storeOperationsTotal,
		m.storeOperationDuration,
		m.keyReadFailuresTotal,
		m.setterRejectionsTotal,
		m.settingsCount,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
	)
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (m *metricsManager) RecordStoreOperation(operation string, success bool, duration time.Duration) {
	m.storeOperationsTotal.WithLabelValues(operation, result(success)).Inc()
	m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *metricsManager) RecordKeyReadFailure(key string) {
	m.keyReadFailuresTotal.WithLabelValues(key).Inc()
}

func (m *metricsManager) RecordSetterRejection(settingType string) {
	m.setterRejectionsTotal.WithLabelValues(settingType).Inc()
}

func (m *metricsManager) SetSettingsCount(n int) {
	m.settingsCount.Set(float64(n))
}

func (m *metricsManager) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *metricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template
func (m *metricsManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrapped, r)

			m.RecordHTTPRequest(r.Method, routeOf(r), strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}

// routeOf returns the mux path template so labels stay bounded
func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// noopManager is a no-op implementation when metrics are disabled
type noopManager struct{}

func (n *noopManager) RecordStoreOperation(operation string, success bool, duration time.Duration) {}
func (n *noopManager) RecordKeyReadFailure(key string)                                                 {}
func (n *noopManager) RecordSetterRejection(settingType string)                                        {}
func (n *noopManager) SetSettingsCount(count int)                                                      {}
func (n *noopManager) RecordHTTPRequest(method, route, status string, duration time.Duration)          {}
func (n *noopManager) Handler() http.Handler                                                           { return http.NotFoundHandler() }
func (n *noopManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}
