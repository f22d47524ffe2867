package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the Prometheus collectors of the booking backend. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	handler         http.Handler
	bookings        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	sweeps          prometheus.Counter
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_reservation_attempts_total",
		Help: "Reservation creation attempts by outcome",
	}, []string{"outcome"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Reservation status transitions by target status and outcome",
	}, []string{"to", "outcome"})

	sweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_no_show_marked_total",
		Help: "Reservations marked no_show by the sweep",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	registry.MustRegister(
		bookings,
		transitions,
		sweeps,
		requestDuration,
		requestTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Recorder{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		bookings:        bookings,
		transitions:     transitions,
		sweeps:          sweeps,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return r.handler
}

func (r *Recorder) ObserveBooking(outcome string) {
	if r == nil {
		return
	}
	r.bookings.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveTransition(to, outcome string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(to, outcome).Inc()
}

func (r *Recorder) ObserveNoShows(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.sweeps.Add(float64(n))
}

func (r *Recorder) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	if r == nil {
		return
	}
	code := strconv.Itoa(status)
	r.requestDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
	r.requestTotal.WithLabelValues(method, path, code).Inc()
}
