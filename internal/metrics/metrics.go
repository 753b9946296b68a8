// Package metrics declares the Prometheus collectors exported on /metrics and
// small helpers for recording into them.
package metrics

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rating_store_query_duration_seconds",
			Help:    "Duration of rating store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_store_errors_total",
			Help: "Total number of rating store errors by class",
		},
		[]string{"operation", "class"}, // "not_found", "duplicate_key", "unavailable", "other"
	)

	StorePoolAcquiredConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rating_store_pool_acquired_conns",
			Help: "Connections currently acquired from the pool",
		},
	)

	StorePoolTotalConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rating_store_pool_total_conns",
			Help: "Total connections held by the pool",
		},
	)

	// Rating service metrics
	RatingSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_submissions_total",
			Help: "Rating submissions by outcome",
		},
		[]string{"outcome"}, // "created", "updated", "race_retried"
	)

	// Average cache metrics
	AverageCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_average_cache_lookups_total",
			Help: "Average cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// ObserveStoreQuery records the duration of a store operation and classifies
// its error, if any.
func ObserveStoreQuery(operation string, start time.Time, errClass string) {
	StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if errClass != "" {
		StoreErrors.WithLabelValues(operation, errClass).Inc()
	}
}

// RecordSubmission counts a rating submission outcome.
func RecordSubmission(outcome string) {
	RatingSubmissions.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts an average cache lookup result.
func RecordCacheLookup(result string) {
	AverageCacheLookups.WithLabelValues(result).Inc()
}

// RecordAPIRequest records one served request.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePool copies pool statistics into the pool gauges.
func ObservePool(stat *pgxpool.Stat) {
	if stat == nil {
		return
	}
	StorePoolAcquiredConns.Set(float64(stat.AcquiredConns()))
	StorePoolTotalConns.Set(float64(stat.TotalConns()))
}
