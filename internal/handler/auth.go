package handler

import (
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"loom/internal/domain"
	"loom/internal/domain/repositories"
	"loom/internal/httputil"
	"loom/internal/middleware"
	"loom/internal/security"
)

const sessionTTL = 7 * 24 * time.Hour

// AuthHandler serves cookie-session login and logout.
type AuthHandler struct {
	users    repositories.UserStore
	sessions repositories.SessionStore
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. secure controls the cookie
// Secure flag and should be true outside local development.
func NewAuthHandler(users repositories.UserStore, sessions repositories.SessionStore, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		secure:   secure,
		logger:   logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type authStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		// Uniform rejection; do not reveal whether the account exists.
		httputil.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !security.VerifyPassword(req.Password, user.PasswordHash) {
		httputil.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	expiresAt := time.Now().UTC().Add(sessionTTL)
	token, err := h.sessions.CreateSession(r.Context(), user.ID, expiresAt)
	if err != nil {
		handleError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user logged in", "user_id", user.ID)
	httputil.RespondJSON(w, http.StatusOK, authStatusResponse{
		Authenticated: true,
		Username:      user.Username,
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil && cookie.Value != "" {
		if err := h.sessions.DeleteSession(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookie)
	if err != nil || cookie.Value == "" {
		httputil.RespondJSON(w, http.StatusOK, authStatusResponse{Authenticated: false})
		return
	}

	session, err := h.sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		httputil.RespondJSON(w, http.StatusOK, authStatusResponse{Authenticated: false})
		return
	}

	user, err := h.users.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		handleError(w, &domain.UnauthorizedError{Message: "session user missing"})
		return
	}

	httputil.RespondJSON(w, http.StatusOK, authStatusResponse{
		Authenticated: true,
		Username:      user.Username,
	})
}
