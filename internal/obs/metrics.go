package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Доменные метрики безопасности
var (
	securityAnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_analyses_total",
			Help: "Completed login-security analyses by outcome.",
		},
		[]string{"outcome"},
	)

	threatFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_threat_findings_total",
			Help: "Threat findings emitted by the risk engine, by category.",
		},
		[]string{"category"},
	)

	failedLoginsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "security_failed_logins_total",
		Help: "Failed password checks recorded in the login audit trail.",
	})
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		securityAnalysesTotal, threatFindingsTotal, failedLoginsTotal,
	)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAnalysis counts one finished risk analysis with its outcome label.
func ObserveAnalysis(outcome string) {
	securityAnalysesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFinding counts one emitted threat finding.
func ObserveFinding(category string) {
	threatFindingsTotal.WithLabelValues(category).Inc()
}

// ObserveFailedLogin counts one audited password failure.
func ObserveFailedLogin() {
	failedLoginsTotal.Inc()
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path) // без роутера нормализуем сами
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

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
