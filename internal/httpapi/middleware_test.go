package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notebook.app/internal/auth"
	"notebook.app/internal/obs"
	"notebook.app/internal/ratelimit"
)

type stubAuthenticator struct {
	calls int
	id    auth.Identity
	err   error
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	s.calls++
	if s.err != nil {
		return auth.Identity{}, s.err
	}
	if token != "good" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return s.id, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitRunsBeforeAuthentication(t *testing.T) {
	stub := &stubAuthenticator{}
	handler := RequestID(RateLimit(ratelimit.NewFixedWindow(2, time.Minute), false)(Authenticate(stub)(okHandler())))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/notes", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rr.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, rr.Code)
		}
	}
	if stub.calls != 2 {
		t.Fatalf("rejected request reached authentication: %d calls", stub.calls)
	}
}

func TestAuthenticateInjectsIdentity(t *testing.T) {
	stub := &stubAuthenticator{id: auth.Identity{UserID: "u1", Email: "a@example.com", Role: auth.RoleUser}}
	var got auth.Identity
	var ok bool
	handler := Authenticate(stub)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = auth.IdentityFromContext(r.Context())
	}))

	cases := []struct {
		name   string
		setup  func(*http.Request)
		wantID bool
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: accessCookie, Value: "good"}) }, true},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, true},
		{"cookie wins over header", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: accessCookie, Value: "bad"})
			r.Header.Set("Authorization", "Bearer good")
		}, false},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, false},
		{"other scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic Z29vZA==") }, false},
		{"no token", func(*http.Request) {}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok = auth.Identity{}, false
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("chain halted with %d", rr.Code)
			}
			if ok != tc.wantID {
				t.Fatalf("identity present = %v, want %v", ok, tc.wantID)
			}
			if ok && got.UserID != "u1" {
				t.Fatalf("unexpected identity %+v", got)
			}
		})
	}
}

func TestAuthenticateStoreFailureIs500(t *testing.T) {
	stub := &stubAuthenticator{err: errors.New("db down")}
	handler := RequestID(Authenticate(stub)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "db down") {
		t.Fatal("internal error leaked to client")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	handler := RequestID(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rr.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
		"Content-Security-Policy":   "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self'",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Fatalf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req, false); got != "10.1.2.3" {
		t.Fatalf("untrusted proxy: got %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("trusted proxy: got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/notes", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	CORS(okHandler()).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatal("expected local origin to be allowed")
	}

	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	CORS(okHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign preflight: expected 403, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin must not be allowed")
	}
}

func TestLoggingEmitsStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	prev := obs.SetLogger(obs.NewLogger(&buf, "info", "json"))
	defer obs.SetLogger(prev)

	handler := RequestID(Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.RemoteAddr = "127.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"time", "level", "msg", "request_id", "method", "path", "status", "duration_ms"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", entry["status"])
	}
}

func TestRoutesHaveMetricLabels(t *testing.T) {
	a := New(Deps{})
	for _, rt := range a.routes() {
		_, path, _ := strings.Cut(rt.pattern, " ")
		path = strings.ReplaceAll(path, "{id}", "01HZX")
		if got := obs.CanonicalPath(path); got == obs.OtherPath {
			t.Fatalf("route %q is labelled %q in metrics", rt.pattern, got)
		}
	}
}
