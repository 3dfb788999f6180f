package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fallback operations counted by IncFallback.
const (
	OpGenerate   = "generate"
	OpDetail     = "detail"
	OpMedia      = "media"
	OpPlaylist   = "playlist"
	OpDelete     = "delete"
	OpFederation = "federation"
)

// Recorder owns a private registry so tests can build as many as they need.
type Recorder struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fallbackTotal   *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	m := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodfm_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moodfm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodfm_fallback_total",
			Help: "Operations served by the local fallback store instead of the backend",
		}, []string{"operation"}),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.fallbackTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Recorder) ObserveRequest(route string, code int, d time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Recorder) IncFallback(operation string) {
	m.fallbackTotal.WithLabelValues(operation).Inc()
}

// Handler serves the registry in the Prometheus text format.
// Fallbacks exposes the fallback counter, labelled by operation.
func (m *Recorder) Fallbacks() *prometheus.CounterVec {
	return m.fallbackTotal
}

func (m *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Recorder) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records every request under the route name returned by route.
func (m *Recorder) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			m.ObserveRequest(route(r), sw.status, time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
