package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
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
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Метрики аутентификации
var (
	RateLimitRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_rejected_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})

	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh token presentations by result.",
		},
		[]string{"result"},
	)

	RefreshTokensPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_tokens_purged_total",
		Help: "Expired or revoked refresh tokens removed by cleanup.",
	})

	CleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_cleanup_runs_total",
			Help: "Token cleanup runs by result.",
		},
		[]string{"result"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Notebook API build information.",
		},
		[]string{"version", "commit"},
	)
)

var initOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			RateLimitRejected, LoginTotal, RefreshTotal, RefreshTokensPurged, CleanupRuns,
			buildInfo,
		)
	})
}

// SetBuildInfo выставляет build_info{version,commit} 1.
func SetBuildInfo(version, commit string) {
	Init()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// OtherPath labels every request outside the route table.
const OtherPath = "other"

var knownPaths = map[string]struct{}{
	"/healthz": {}, "/readyz": {}, "/metrics": {},
	"/auth/login": {}, "/auth/refresh": {}, "/auth/logout": {},
	"/users/register": {}, "/users/register-form": {}, "/users/me": {},
	"/notes": {}, "/notes/search": {},
	"/admin/users": {}, "/admin/stats": {},
}

// CanonicalPath maps a request path onto a bounded label set: known routes
// keep their path, identifiers collapse to :id, anything else is OtherPath.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if _, ok := knownPaths[p]; ok {
		return p
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "notes" && parts[1] != "":
		return "/notes/:id"
	case len(parts) == 4 && parts[0] == "admin" && parts[1] == "users" && parts[2] != "" && parts[3] == "role":
		return "/admin/users/:id/role"
	}
	return OtherPath
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
