package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	users           *prometheus.GaugeVec
	busy            prometheus.Gauge
	operations      *prometheus.CounterVec
	events          *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_admin_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_admin_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	users := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_admin_users",
		Help: "Number of user records held in memory, by role.",
	}, []string{"role"})
	busy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_admin_store_busy",
		Help: "1 while a user store operation is in flight.",
	})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_admin_store_operations_total",
		Help: "User store operations by name and outcome.",
	}, []string{"op", "outcome"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_admin_store_events_total",
		Help: "User store state changes by event type.",
	}, []string{"type"})
	registry.MustRegister(requests, duration, users, busy, operations, events)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		users:           users,
		busy:            busy,
		operations:      operations,
		events:          events,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SetUserCounts publishes the current record counts.
func (m *Metrics) SetUserCounts(total, admins int) {
	if m == nil {
		return
	}
	m.users.WithLabelValues("admin").Set(float64(admins))
	m.users.WithLabelValues("member").Set(float64(total - admins))
}

// SetBusy publishes the busy flag.
func (m *Metrics) SetBusy(busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.busy.Set(1)
		return
	}
	m.busy.Set(0)
}

// CountOperation records an operation outcome.
func (m *Metrics) CountOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// CountEvent records a state change.
func (m *Metrics) CountEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
