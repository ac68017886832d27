// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/tabletop/internal/apperror"
)

var (
	// httpRequestDuration is labelled by chi route pattern, not raw path,
	// so ids do not explode the series count.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletop_store_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletop_store_operations_total",
			Help: "Total number of storage operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	chatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletop_chat_messages_total",
			Help: "Chat messages published, by broker",
		},
		[]string{"broker"},
	)

	chatSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabletop_chat_subscribers",
			Help: "Open chat stream subscriptions",
		},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records one finished request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	httpRequestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
}

// RecordStoreOperation records one storage call. Expected domain outcomes
// such as not_found are kept apart from real storage failures.
func RecordStoreOperation(operation string, d time.Duration, err error) {
	outcome := Outcome(err)
	storeOperationDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
	storeOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	case errors.Is(err, apperror.ErrValidation):
		return "invalid"
	case errors.Is(err, apperror.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

// RecordChatMessage counts a message handed to the named broker.
func RecordChatMessage(broker string) {
	chatMessagesTotal.WithLabelValues(broker).Inc()
}

// SubscriberOpened and SubscriberClosed track live chat streams.
func SubscriberOpened() { chatSubscribers.Inc() }

func SubscriberClosed() { chatSubscribers.Dec() }
