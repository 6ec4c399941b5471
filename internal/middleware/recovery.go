package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"loom/internal/httputil"
)

// Recovery converts handler panics into 500 problem responses. SSE
// handlers that already started writing get their stream cut instead;
// there is no status line left to send at that point.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)

					httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
