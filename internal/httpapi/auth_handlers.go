package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"notebook.app/internal/audit"
	"notebook.app/internal/auth"
	"notebook.app/internal/obs"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, user, err := a.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		obs.LoginTotal.WithLabelValues("failure").Inc()
		_ = audit.LogEvent(r.Context(), audit.LoginFailed, map[string]any{
			"email":  strings.ToLower(strings.TrimSpace(req.Email)),
			"client": clientIP(r, a.trustProxy),
		})
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		obs.LoginTotal.WithLabelValues("error").Inc()
		internalError(w, r, err)
		return
	}

	obs.LoginTotal.WithLabelValues("success").Inc()
	ctx := auth.ContextWithIdentity(r.Context(), auth.IdentityOf(user))
	_ = audit.LogEvent(ctx, audit.LoginSucceeded, map[string]any{
		"client": clientIP(r, a.trustProxy),
	})
	a.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful", Email: user.Email})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token is required")
		return
	}

	session, user, err := a.auth.Refresh(r.Context(), c.Value)
	switch {
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		obs.RefreshTotal.WithLabelValues("invalid").Inc()
		_ = audit.LogEvent(r.Context(), audit.RefreshRejected, map[string]any{
			"client": clientIP(r, a.trustProxy),
		})
		writeError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	case err != nil:
		obs.RefreshTotal.WithLabelValues("error").Inc()
		internalError(w, r, err)
		return
	}

	obs.RefreshTotal.WithLabelValues("success").Inc()
	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), auth.IdentityOf(user)), audit.RefreshSucceeded, nil)
	a.setSessionCookies(w, session)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Token refreshed", Email: user.Email})
}

// handleLogout always answers 200; an anonymous caller just gets its
// cookies cleared.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		n, err := a.auth.Logout(r.Context(), id)
		if err != nil {
			internalError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), audit.Logout, map[string]any{"revoked": n})
	}
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (a *API) setSessionCookies(w http.ResponseWriter, s auth.Session) {
	http.SetCookie(w, a.cookie(accessCookie, s.AccessToken, int(a.auth.AccessTTL().Seconds())))
	http.SetCookie(w, a.cookie(refreshCookie, s.RefreshToken, int(a.auth.RefreshTTL().Seconds())))
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	// MaxAge<0 is sent as Max-Age=0
	http.SetCookie(w, a.cookie(accessCookie, "", -1))
	http.SetCookie(w, a.cookie(refreshCookie, "", -1))
}

func (a *API) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
