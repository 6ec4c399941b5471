package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"loom/internal/domain/repositories"
	"loom/internal/httputil"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "loom_session"

// publicPaths can be reached without a session.
var publicPaths = map[string]bool{
	"/health":          true,
	"/api/auth/login":  true,
	"/api/auth/status": true,
}

// Auth middleware resolves the session cookie to a user and stores the
// user id in the request context. Requests without a live session get
// a 401 unless the path is public.
func Auth(sessions repositories.SessionStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(SessionCookie)
			if err != nil || strings.TrimSpace(cookie.Value) == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			session, err := sessions.GetSession(r.Context(), cookie.Value)
			if err != nil {
				logger.Debug("session rejected", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "session expired or invalid")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, session.UserID))
		})
	}
}
