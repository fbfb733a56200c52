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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushgate_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushgate_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_notifications_sent_total",
			Help: "Messages accepted by the push provider",
		},
	)

	notificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_notifications_failed_total",
			Help: "Messages the push provider failed to deliver",
		},
	)

	notificationsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_notifications_enqueued_total",
			Help: "Jobs appended to the retry queue",
		},
	)

	tokensQuarantined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_tokens_quarantined_total",
			Help: "Tokens quarantined as permanently undeliverable",
		},
	)

	processorTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_processor_ticks_total",
			Help: "Queue processor ticks executed",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushgate_queue_depth",
			Help: "Current length of the retry queue",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationsSent adds provider-accepted messages to the sent counter
func RecordNotificationsSent(count int) {
	notificationsSent.Add(float64(count))
}

// RecordNotificationsFailed adds undelivered messages to the failed counter
func RecordNotificationsFailed(count int) {
	notificationsFailed.Add(float64(count))
}

// RecordNotificationEnqueued records a job entering the retry queue
func RecordNotificationEnqueued() {
	notificationsEnqueued.Inc()
}

// RecordTokenQuarantined records a token entering quarantine
func RecordTokenQuarantined() {
	tokensQuarantined.Inc()
}

// RecordProcessorTick records one processor tick
func RecordProcessorTick() {
	processorTicks.Inc()
}

// SetQueueDepth sets the current retry queue length
func SetQueueDepth(n int64) {
	queueDepth.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
