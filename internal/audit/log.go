// Package audit records security-relevant events (logins, refresh reuse,
// rejected requests) as structured log lines.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"notebook.app/internal/auth"
	"notebook.app/internal/obs"
)

// Event names.
const (
	LoginSucceeded     = "auth.login.succeeded"
	LoginFailed        = "auth.login.failed"
	RefreshSucceeded   = "auth.refresh.succeeded"
	RefreshRejected    = "auth.refresh.rejected"
	Logout             = "auth.logout"
	RateLimitExceeded  = "ratelimit.exceeded"
	AccessUnauthorized = "access.unauthorized"
	AccessForbidden    = "access.forbidden"
	UserRegistered     = "user.registered"
	RoleChanged        = "user.role_changed"
	CleanupSucceeded   = "tokens.cleanup.succeeded"
	CleanupFailed      = "tokens.cleanup.failed"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and identity context.
// Failures are logged at warn level, everything else at info.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		attrs = append(attrs, slog.String("user_id", id.UserID), slog.String("user_email", id.Email))
	}
	group := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		group = append(group, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	level := slog.LevelInfo
	if isFailure(event) {
		level = slog.LevelWarn
	}
	obs.Logger().LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

func isFailure(event string) bool {
	switch event {
	case LoginFailed, RefreshRejected, RateLimitExceeded, AccessUnauthorized, AccessForbidden, CleanupFailed:
		return true
	}
	return false
}
