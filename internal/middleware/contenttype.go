package middleware

import (
	"net/http"
	"strings"

	"github.com/benvon/logstream/internal/converter"
	"go.uber.org/zap"
)

// ContentType rejects request bodies whose Content-Type none of the supported
// media types include. Methods without a body are not checked.
func ContentType(supported []converter.MediaType, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPatch && r.Method != http.MethodPut {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				writeError(w, r, http.StatusBadRequest, "Content-Type header is required", logger)
				return
			}

			mt, err := converter.ParseMediaType(contentType)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "Malformed Content-Type header", logger)
				return
			}
			for _, s := range supported {
				if s.Includes(mt) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, http.StatusUnsupportedMediaType,
				"Content-Type must be one of "+mediaTypeList(supported), logger)
		})
	}
}

func mediaTypeList(types []converter.MediaType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
