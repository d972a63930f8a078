// Package metrics holds the Prometheus collectors of the booking engine. All
// Recorder methods are safe on a nil receiver so tests can leave it out.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes used as the "outcome" label.
const (
	OutcomeBooked        = "booked"
	OutcomeAlreadyBooked = "already_booked"
	OutcomeNotAvailable  = "not_available"
	OutcomeInPast        = "in_past"
	OutcomeBusy          = "busy"
	OutcomeNotFound      = "not_found"
	OutcomeError         = "error"
)

type Recorder struct {
	registry        *prometheus.Registry
	bookingTotal    *prometheus.CounterVec
	bookingDuration prometheus.Histogram
	recurringSkips  *prometheus.CounterVec
	slotEdits       prometheus.Counter
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()

	bookingTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_attempts_total",
		Help: "Booking attempts by outcome",
	}, []string{"outcome"})

	bookingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "booking_duration_seconds",
		Help:    "Duration of booking transactions in seconds",
		Buckets: prometheus.DefBuckets,
	})

	recurringSkips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recurring_skipped_slots_total",
		Help: "Slots left untouched by recurring pattern applications",
	}, []string{"reason"})

	slotEdits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slot_type_updates_total",
		Help: "Slot type updates written to the availability store",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	registry.MustRegister(
		bookingTotal,
		bookingDuration,
		recurringSkips,
		slotEdits,
		requestDuration,
		requestTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Recorder{
		registry:        registry,
		bookingTotal:    bookingTotal,
		bookingDuration: bookingDuration,
		recurringSkips:  recurringSkips,
		slotEdits:       slotEdits,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveBooking(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.bookingTotal.WithLabelValues(outcome).Inc()
	r.bookingDuration.Observe(d.Seconds())
}

func (r *Recorder) AddRecurringSkip(reason string) {
	if r == nil {
		return
	}
	r.recurringSkips.WithLabelValues(reason).Inc()
}

func (r *Recorder) AddSlotEdits(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.slotEdits.Add(float64(n))
}

func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	code := strconv.Itoa(status)
	r.requestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
	r.requestTotal.WithLabelValues(method, route, code).Inc()
}
