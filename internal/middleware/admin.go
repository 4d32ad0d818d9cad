package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// AdminToken требует Authorization: Bearer <token> для изменяющих запросов.
// Пустой token отключает проверку.
func AdminToken(token string, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				logger.Warn("Unauthorized access attempt",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("request_id", RequestID(r.Context())))

				w.Header().Set("WWW-Authenticate", `Bearer realm="taskdispatch"`)
				writeError(w, http.StatusUnauthorized, "admin token required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
