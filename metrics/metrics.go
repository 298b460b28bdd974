package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_submissions_total",
			Help: "Join-form submissions by outcome",
		},
		[]string{"result"}, // created, invalid, duplicate, error
	)

	UnsubscribesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_unsubscribes_total",
			Help: "Unsubscribe requests by outcome",
		},
		[]string{"result"}, // unsubscribed, already, invalid, not_found, throttled, error
	)

	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_emails_total",
			Help: "Outbound emails by kind and status",
		},
		[]string{"kind", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signup_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)
)

func IncSubmission(result string) {
	SubmissionsTotal.WithLabelValues(result).Inc()
}

func IncUnsubscribe(result string) {
	UnsubscribesTotal.WithLabelValues(result).Inc()
}

func IncEmail(kind, status string) {
	EmailsTotal.WithLabelValues(kind, status).Inc()
}

func RecordHTTPRequestDuration(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
