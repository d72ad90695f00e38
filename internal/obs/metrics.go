package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	shipmentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipment_status_transitions_total",
			Help: "Shipment status transitions, including the initial booking.",
		},
		[]string{"status"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_notifications_total",
			Help: "Outbound SMS notification attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		shipmentTransitions,
		notificationsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransition counts a shipment status transition.
func ObserveTransition(status string) {
	shipmentTransitions.WithLabelValues(status).Inc()
}

// ObserveNotification counts an SMS attempt outcome ("sent" or "failed").
func ObserveNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-entity URL segments so that metric label
// cardinality stays bounded. Unknown paths pass through unchanged.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	rewrite := func(prefix []string, param string) (string, bool) {
		if len(segments) < len(prefix)+1 {
			return "", false
		}
		for i, p := range prefix {
			if segments[i] != p {
				return "", false
			}
		}
		rest := segments[len(prefix)+1:]
		out := "/" + strings.Join(prefix, "/") + "/" + param
		if len(rest) > 0 {
			out += "/" + strings.Join(rest, "/")
		}
		return out, true
	}
	if out, ok := rewrite([]string{"api", "shipment", "track"}, ":tracking_id"); ok {
		return out
	}
	if out, ok := rewrite([]string{"api", "shipment"}, ":tracking_id"); ok {
		// Collection endpoints keep their own labels.
		switch segments[2] {
		case "create", "list", "branch", "stream":
			return path
		}
		return out
	}
	if out, ok := rewrite([]string{"api", "branch"}, ":slug"); ok {
		switch segments[2] {
		case "add", "list", "me", "day_end", "get_other_braches":
			return path
		}
		return out
	}
	if out, ok := rewrite([]string{"api", "bus"}, ":slug"); ok {
		switch segments[2] {
		case "add", "list", "available":
			return path
		}
		return out
	}
	if out, ok := rewrite([]string{"api", "messages"}, ":id"); ok {
		return out
	}
	return path
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
