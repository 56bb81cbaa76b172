package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics
var (
	datasetRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dataset_records",
		Help: "Price records in the live snapshot.",
	})

	datasetRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dataset_regions",
		Help: "Distinct regions in the live snapshot.",
	})

	datasetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_loads_total",
			Help: "Dataset load attempts by result.",
		},
		[]string{"result"},
	)

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when a dataset snapshot is being served.",
	})

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			datasetRecords, datasetRegions, datasetLoadsTotal, serviceReady, loginsTotal,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDatasetLoad records a load attempt. Gauges only move on success so
// they keep describing the snapshot still being served after a failure.
func ObserveDatasetLoad(ok bool, records, regions int) {
	if !ok {
		datasetLoadsTotal.WithLabelValues("failure").Inc()
		return
	}
	datasetLoadsTotal.WithLabelValues("success").Inc()
	datasetRecords.Set(float64(records))
	datasetRegions.Set(float64(regions))
}

// SetReady flips the readiness gauge.
func SetReady(ready bool) {
	if ready {
		serviceReady.Set(1)
		return
	}
	serviceReady.Set(0)
}

// ObserveLogin records a login attempt outcome, e.g. "success" or "invalid_credentials".
func ObserveLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// CanonicalPath strips the query string and collapses unknown paths so the
// path label stays low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	switch path {
	case "/", "/healthz", "/readyz", "/metrics", "/openapi.yaml", "/v1/info",
		"/v1/auth/login",
		"/v1/prices/mean", "/v1/prices/records", "/v1/prices/regions", "/v1/prices/reload":
		return path
	}
	return "other"
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// statusWriter is a local copy so obs does not depend on httpapi.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
