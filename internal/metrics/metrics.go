// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Uploads counts photo uploads by outcome
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catmap_photo_uploads_total",
			Help: "Total number of photo uploads",
		},
		[]string{"status"}, // status: success/failure
	)

	// Deletions counts deleted records by kind
	Deletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catmap_deletions_total",
			Help: "Total number of deleted records",
		},
		[]string{"kind"}, // kind: photo/cat/comment/thread
	)

	// OrphansQueued counts stored objects whose deletion failed
	OrphansQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catmap_orphan_objects_queued_total",
			Help: "Total number of stored objects queued for deletion retry",
		},
	)

	// OrphansSwept counts orphan objects removed by the sweeper
	OrphansSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catmap_orphan_objects_swept_total",
			Help: "Total number of orphan objects removed by the sweeper",
		},
	)

	// MapSessions is the number of connected map clients
	MapSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catmap_map_sessions_current",
			Help: "Current number of connected map sessions",
		},
	)

	// Compressions observes time spent transcoding images
	Compressions = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catmap_image_compression_seconds",
			Help:    "Time spent compressing uploaded images",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"preset"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catmap_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Handler serves the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request durations labelled by the matched chi route
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
