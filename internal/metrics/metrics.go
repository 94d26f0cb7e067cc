package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tutorly"

type Metrics struct {
	Reservations        *prometheus.CounterVec
	ReservationDuration *prometheus.HistogramVec
	Compensations       *prometheus.CounterVec
	SlotWrites          *prometheus.CounterVec
	ChangesPublished    *prometheus.CounterVec
	RPCRequests         *prometheus.CounterVec
	RPCDuration         *prometheus.HistogramVec
	RateLimited         prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. Pass a fresh prometheus.NewRegistry()
// in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation attempts by terminal state.",
		}, []string{"state"}),
		ReservationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reservation_duration_seconds",
			Help:      "Time from claim to terminal state.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_compensations_total",
			Help:      "Compensating releases by result.",
		}, []string{"result"}),
		SlotWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_writes_total",
			Help:      "Tutor slot writes by operation and result.",
		}, []string{"op", "result"}),
		ChangesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_changes_published_total",
			Help:      "Availability change signals by result.",
		}, []string{"result"}),
		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and code.",
		}, []string{"method", "code"}),
		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveReservation(state string, elapsed time.Duration) {
	m.Reservations.WithLabelValues(state).Inc()
	m.ReservationDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCompensation(err error) {
	m.Compensations.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveSlotWrite(op string, err error) {
	m.SlotWrites.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) ObservePublish(err error) {
	m.ChangesPublished.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveRPC(method, code string, elapsed time.Duration) {
	m.RPCRequests.WithLabelValues(method, code).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRateLimited() {
	m.RateLimited.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
