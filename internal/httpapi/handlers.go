package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"notebook.app/internal/audit"
	"notebook.app/internal/auth"
	"notebook.app/internal/notes"
	"notebook.app/internal/obs"
	"notebook.app/internal/ratelimit"
)

const serviceName = "notebook-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe: простая проверка готовности (ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Auth    *auth.Service
	Notes   *notes.Service
	Limiter ratelimit.Limiter
	Ready   readinessChecker
	Version string

	// TrustProxyHeaders keys the rate limiter on X-Forwarded-For.
	TrustProxyHeaders bool
	CookieSecure      bool
	MaxBodyBytes      int64
}

// API: HTTP слой.
type API struct {
	mux     *http.ServeMux
	auth    *auth.Service
	notes   *notes.Service
	limiter ratelimit.Limiter
	ready   readinessChecker
	version string

	trustProxy   bool
	cookieSecure bool
	maxBody      int64
}

func New(d Deps) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         d.Auth,
		notes:        d.Notes,
		limiter:      d.Limiter,
		ready:        d.Ready,
		version:      d.Version,
		trustProxy:   d.TrustProxyHeaders,
		cookieSecure: d.CookieSecure,
		maxBody:      d.MaxBodyBytes,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	for _, rt := range a.routes() {
		a.mux.Handle(rt.pattern, a.authorize(rt.access, rt.handler))
	}
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	return a
}

// Handler returns the full chain. Per request: rate limit, then
// authentication, then the route's access check inside the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	if a.auth != nil {
		h = Authenticate(a.auth)(h)
	}
	h = CORS(h)
	if a.limiter != nil {
		h = RateLimit(a.limiter, a.trustProxy)(h)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	// оборачиваем всё метриками
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{
		Status:    code,
		Error:     http.StatusText(code),
		Message:   msg,
		RequestID: audit.RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// internalError logs err and answers 500 without leaking details.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	obs.Logger().ErrorContext(r.Context(), "request failed",
		"error", err,
		"request_id", audit.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
	writeError(w, r, http.StatusInternalServerError, "internal server error")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
