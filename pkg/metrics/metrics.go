// Package metrics declares the Prometheus collectors of the forum API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forum_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})
	CommentsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forum_comments_deleted_total",
			Help: "Total number of comments removed, including cascaded replies.",
		})
	TreeCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forum_comment_tree_cache_total",
			Help: "Comment tree cache lookups by result.",
		}, []string{"result"})
)

// ObserveRequest records one served request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// CacheResult records a tree cache hit or miss.
func CacheResult(hit bool) {
	if hit {
		TreeCache.WithLabelValues("hit").Inc()
		return
	}
	TreeCache.WithLabelValues("miss").Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
