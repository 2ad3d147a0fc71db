package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tableside"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	sessionsEstablished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_established_total",
			Help:      "Guest session attempts by result.",
		},
		[]string{"result"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Persisted order status transitions.",
		},
		[]string{"from", "to"},
	)

	notificationsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Notifications published by type.",
		},
		[]string{"type"},
	)

	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Subscribers dropped because their queue was full.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			sessionsEstablished,
			orderTransitions,
			notificationsPublished,
			notificationsDropped,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncSession counts an establish or check outcome ("established", "passcode_required", ...).
func IncSession(result string) {
	sessionsEstablished.WithLabelValues(result).Inc()
}

func IncOrderTransition(from, to string) {
	orderTransitions.WithLabelValues(from, to).Inc()
}

func IncNotification(kind string) {
	notificationsPublished.WithLabelValues(kind).Inc()
}

func IncDropped() {
	notificationsDropped.Inc()
}
