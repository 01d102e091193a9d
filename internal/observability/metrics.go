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
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	expenseDecisions *prometheus.CounterVec
	alertsRaised     *prometheus.CounterVec
	billingRuns      *prometheus.CounterVec
	billedAmount     prometheus.Counter
	reportCache      *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	expenses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pcm_expense_decisions_total",
		Help: "Expense approvals and rejections.",
	}, []string{"decision"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pcm_budget_alerts_total",
		Help: "Budget alerts raised partitioned by alert type.",
	}, []string{"type"})
	billing := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pcm_billing_runs_total",
		Help: "Billing aggregations and invoices created.",
	}, []string{"kind"})
	billed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_pcm_billed_amount_total",
		Help: "Sum of billed amounts across billing runs.",
	})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pcm_report_cache_total",
		Help: "Report cache lookups partitioned by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, expenses, alerts, billing, billed, cache)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		expenseDecisions: expenses,
		alertsRaised:     alerts,
		billingRuns:      billing,
		billedAmount:     billed,
		reportCache:      cache,
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

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ExpenseDecided counts an expense approval or rejection.
func (m *Metrics) ExpenseDecided(decision string) {
	if m == nil {
		return
	}
	m.expenseDecisions.WithLabelValues(decision).Inc()
}

// AlertRaised counts a newly stored budget alert.
func (m *Metrics) AlertRaised(alertType string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType).Inc()
}

// BillingRun counts a billing aggregation ("client_billing") or invoice ("invoice").
func (m *Metrics) BillingRun(kind string, amount float64) {
	if m == nil {
		return
	}
	m.billingRuns.WithLabelValues(kind).Inc()
	if amount > 0 {
		m.billedAmount.Add(amount)
	}
}

// ReportCacheLookup counts report cache hits and misses.
func (m *Metrics) ReportCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(result).Inc()
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
