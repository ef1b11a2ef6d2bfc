package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/CivStat/MetricBoard/internal/domain/user"
	"github.com/CivStat/MetricBoard/internal/middleware"
)

const refreshCookieName = "metricboard_refresh"

func setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/api/v1/auth",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	resp, rawRefresh, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		slog.Debug("login failed", "email", req.Email, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	setRefreshCookie(w, rawRefresh, int(7*24*time.Hour/time.Second))
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no refresh token")
		return
	}

	resp, newRawRefresh, err := h.Auth.RefreshTokens(r.Context(), cookie.Value)
	if err != nil {
		slog.Debug("token refresh failed", "error", err)
		setRefreshCookie(w, "", -1)
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	setRefreshCookie(w, newRawRefresh, int(7*24*time.Hour/time.Second))
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		if err := h.Auth.Logout(r.Context(), cookie.Value); err != nil {
			writeInternalError(w, err)
			return
		}
	}

	setRefreshCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me handles GET /api/v1/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	req, ok := readJSON[struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), u.ID, req.OldPassword, req.NewPassword); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// CreateUser handles POST /api/v1/users (admin only)
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	u, err := h.Auth.Register(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ListUsers handles GET /api/v1/users (admin only)
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Auth.ListUsers(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if users == nil {
		users = []user.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
