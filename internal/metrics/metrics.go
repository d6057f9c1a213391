// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageeditor_http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imageeditor_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	TransformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageeditor_transforms_total",
			Help: "Transform submissions by workflow and outcome",
		},
		[]string{"workflow", "outcome"},
	)

	TransformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imageeditor_transform_duration_seconds",
			Help:    "Remote round-trip time of a transform submission",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"workflow"},
	)

	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageeditor_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageeditor_registrations_total",
			Help: "Registration attempts by result",
		},
		[]string{"result"},
	)

	SuggestCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageeditor_suggest_cache_total",
			Help: "Object suggestion cache lookups by result",
		},
		[]string{"result"},
	)

	StagedUploads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imageeditor_staged_uploads",
		Help: "Temporary upload files currently on disk",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imageeditor_active_sessions",
		Help: "Browser sessions currently held in memory",
	})
)

// Middleware records request counts and latency, labelled by the chi
// route pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
