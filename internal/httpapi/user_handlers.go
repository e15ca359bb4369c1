package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"notebook.app/internal/audit"
	"notebook.app/internal/auth"
)

type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func viewUser(u *auth.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegisterJSON(w http.ResponseWriter, r *http.Request) {
	if !hasContentType(r, "application/json") {
		writeError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.register(w, r, auth.RegisterInput(req))
}

func (a *API) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	if !hasContentType(r, "application/x-www-form-urlencoded") {
		writeError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/x-www-form-urlencoded")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form body")
		return
	}
	a.register(w, r, auth.RegisterInput{
		Username: r.PostForm.Get("username"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	})
}

func (a *API) register(w http.ResponseWriter, r *http.Request, in auth.RegisterInput) {
	u, err := a.auth.Register(r.Context(), in)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, errMessage(err, auth.ErrInvalidInput))
		return
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "email is already registered")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), auth.IdentityOf(u)), audit.UserRegistered, map[string]any{
		"username": u.Username,
	})
	w.Header().Set("Location", "/users/me")
	writeJSON(w, http.StatusCreated, viewUser(u))
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	u, err := a.auth.User(r.Context(), id.UserID)
	if errors.Is(err, auth.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(u))
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.auth.Stats(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "role must be USER or ADMIN")
		return
	}
	userID := r.PathValue("id")
	err = a.auth.SetRole(r.Context(), userID, role)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, errMessage(err, auth.ErrInvalidInput))
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.RoleChanged, map[string]any{
		"target_user_id": userID,
		"role":           string(role),
	})
	u, err := a.auth.User(r.Context(), userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewUser(u))
}

func hasContentType(r *http.Request, want string) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == want
}

// errMessage drops the sentinel prefix from a wrapped validation error.
func errMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}
