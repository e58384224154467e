package v1

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "splitledger",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
	expensesRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "expenses_recorded_total",
			Help:      "Total number of expenses added",
		},
	)
	expensesEditedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "expenses_edited_total",
			Help:      "Total number of expenses edited",
		},
	)
	expensesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "expenses_deleted_total",
			Help:      "Total number of expenses deleted",
		},
	)
	edgesResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "edges_resolved_total",
			Help:      "Total number of debt edges marked resolved",
		},
	)
	groupsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "groups_completed_total",
			Help:      "Total number of groups that reached completed",
		},
	)
	groupsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "groups_deleted_total",
			Help:      "Total number of groups soft-deleted",
		},
	)
	groupsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "groups_purged_total",
			Help:      "Total number of deleted groups purged after retention",
		},
	)
)

// AddGroupsPurged records purges performed by the background sweeper, which
// lives outside this package.
func AddGroupsPurged(n int) {
	groupsPurgedTotal.Add(float64(n))
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := strconv.Itoa(ww.Status())
		httpRequestsTotal.WithLabelValues(r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
	})
}
