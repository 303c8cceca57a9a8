package middleware

import (
	"net/http"

	logpkg "github.com/benvon/logstream/internal/logger"
	"github.com/benvon/logstream/internal/request"
	"go.uber.org/zap"
)

// auditedStatuses are responses that point at a misbehaving or hostile client:
// rejected cross-origin requests, oversized or mistyped bodies and rate limiting.
var auditedStatuses = map[int]bool{
	http.StatusForbidden:             true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusUnsupportedMediaType:  true,
	http.StatusTooManyRequests:       true,
}

// Audit logs a security_event at warn level for every audited response status.
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			if !auditedStatuses[wrapped.statusCode] {
				return
			}
			logger.Warn("security_event",
				zap.Int("status_code", wrapped.statusCode),
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.String("origin", logpkg.SanitizeOrigin(r.Header.Get("Origin"))),
				zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)),
			)
		})
	}
}
