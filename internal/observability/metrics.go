package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the fee ledger service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	challansIssued  *prometheus.CounterVec
	paymentsTotal   prometheus.Counter
	promotionsTotal *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campusledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	challans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusledger_challans_issued_total",
		Help: "Challans issued by challan type.",
	}, []string{"type"})
	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campusledger_payments_recorded_total",
		Help: "Payments recorded against challans.",
	})
	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusledger_promotions_total",
		Help: "Promotion attempts by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, challans, payments, promotions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		challansIssued:  challans,
		paymentsTotal:   payments,
		promotionsTotal: promotions,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ChallanIssued increments the issued-challan counter for a challan type.
func (m *Metrics) ChallanIssued(challanType string) {
	if m == nil {
		return
	}
	m.challansIssued.WithLabelValues(challanType).Inc()
}

// PaymentRecorded increments the payment counter.
func (m *Metrics) PaymentRecorded() {
	if m == nil {
		return
	}
	m.paymentsTotal.Inc()
}

// PromotionAttempt increments the promotion counter for an outcome
// ("promoted", "blocked", "demoted").
func (m *Metrics) PromotionAttempt(outcome string) {
	if m == nil {
		return
	}
	m.promotionsTotal.WithLabelValues(outcome).Inc()
}

// Middleware records metrics for every HTTP request.
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

// Registerer exposes the registry for custom metric registration.
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
