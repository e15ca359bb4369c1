package httpapi

import (
	"net/http"

	"notebook.app/internal/audit"
	"notebook.app/internal/auth"
	"notebook.app/internal/obs"
)

// Access is the requirement a route places on the request identity.
type Access int

const (
	Public Access = iota
	Authenticated
	AdminOnly
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case AdminOnly:
		return "admin"
	}
	return "unknown"
}

type route struct {
	pattern string
	access  Access
	handler http.HandlerFunc
}

func (a *API) routes() []route {
	return []route{
		{"GET /healthz", Public, a.Healthz},
		{"GET /readyz", Public, a.Ready},
		{"GET /metrics", Public, obs.Handler().ServeHTTP},

		{"POST /auth/login", Public, a.handleLogin},
		{"POST /auth/refresh", Public, a.handleRefresh},
		{"POST /auth/logout", Public, a.handleLogout},

		{"POST /users/register", Public, a.handleRegisterJSON},
		{"POST /users/register-form", Public, a.handleRegisterForm},
		{"GET /users/me", Authenticated, a.handleMe},

		{"POST /notes", Authenticated, a.handleCreateNote},
		{"GET /notes", Authenticated, a.handleListNotes},
		{"GET /notes/search", Authenticated, a.handleSearchNotes},
		{"GET /notes/{id}", Authenticated, a.handleGetNote},
		{"DELETE /notes/{id}", Authenticated, a.handleDeleteNote},

		{"GET /admin/users", AdminOnly, a.handleListUsers},
		{"GET /admin/stats", AdminOnly, a.handleStats},
		{"PATCH /admin/users/{id}/role", AdminOnly, a.handleSetRole},
	}
}

const wwwAuthenticate = `Bearer realm="notebook"`

// authorize checks the identity placed in the context by Authenticate
// against the route requirement: no identity is 401, wrong role is 403.
func (a *API) authorize(access Access, next http.Handler) http.Handler {
	if access == Public {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			_ = audit.LogEvent(r.Context(), audit.AccessUnauthorized, map[string]any{
				"path":   r.URL.Path,
				"method": r.Method,
				"client": clientIP(r, a.trustProxy),
			})
			w.Header().Set("WWW-Authenticate", wwwAuthenticate)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if access == AdminOnly && !id.HasRole(auth.RoleAdmin) {
			_ = audit.LogEvent(r.Context(), audit.AccessForbidden, map[string]any{
				"path":     r.URL.Path,
				"method":   r.Method,
				"required": access.String(),
				"role":     string(id.Role),
			})
			w.Header().Set("WWW-Authenticate", wwwAuthenticate+`, error="insufficient_scope"`)
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
