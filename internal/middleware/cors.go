package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/benvon/logstream/internal/logger"
	"github.com/benvon/logstream/internal/webconfig"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// InvalidCORSRequest is the body written when a cross-origin request is rejected.
const InvalidCORSRequest = "Invalid CORS request"

// corsPolicy is one compiled CORSMapping.
type corsPolicy struct {
	pattern PathPattern
	methods string
	cors    *cors.Cors
}

// CORS builds middleware applying the first mapping whose path pattern matches the
// request path. Allowed origins are reflected rather than answered with "*", so
// credentialed requests work with wildcard origin patterns. Preflights are answered
// here and never reach next.
func CORS(mappings []webconfig.CORSMapping, log *zap.Logger) (func(http.Handler) http.Handler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	policies := make([]corsPolicy, 0, len(mappings))
	for _, m := range mappings {
		p, err := newCORSPolicy(m)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
		log.Info("cors_mapping_registered",
			zap.String("path_pattern", m.PathPattern),
			zap.Strings("origins", m.Origins()),
			zap.Strings("methods", m.Methods()),
			zap.Bool("allow_credentials", m.AllowCredentials),
			zap.Int("max_age", m.MaxAge),
		)
	}

	return func(next http.Handler) http.Handler {
		handlers := make([]http.Handler, len(policies))
		for i, p := range policies {
			handlers[i] = p.cors.Handler(p.finalize(next, log))
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for i, p := range policies {
				if !p.pattern.Match(r.URL.Path) {
					continue
				}
				if r.Header.Get("Origin") == "" || isSameOrigin(r) {
					break
				}
				handlers[i].ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func newCORSPolicy(m webconfig.CORSMapping) (corsPolicy, error) {
	if err := m.Validate(); err != nil {
		return corsPolicy{}, err
	}
	pattern, err := CompilePathPattern(m.PathPattern)
	if err != nil {
		return corsPolicy{}, fmt.Errorf("cors mapping %q: %w", m.PathPattern, err)
	}

	// Origin matching only. Its ACAO would be a literal "*" for wildcard patterns.
	origins := cors.New(cors.Options{AllowedOrigins: m.Origins()})

	methods := m.Methods()
	return corsPolicy{
		pattern: pattern,
		methods: strings.Join(methods, ","),
		cors: cors.New(cors.Options{
			AllowOriginVaryRequestFunc: func(r *http.Request, _ string) (bool, []string) {
				return origins.OriginAllowed(r), nil
			},
			AllowedMethods:     methods,
			AllowedHeaders:     m.AllowedHeaders,
			ExposedHeaders:     m.ExposedHeaders,
			AllowCredentials:   m.AllowCredentials,
			MaxAge:             m.MaxAge,
			OptionsPassthrough: true,
		}),
	}, nil
}

// finalize runs after rs/cors has written its headers. A missing
// Access-Control-Allow-Origin means the request was rejected.
func (p corsPolicy) finalize(next http.Handler, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := w.Header().Get("Access-Control-Allow-Origin") != ""
		preflight := isPreflight(r)

		if !allowed {
			log.Debug("cors_request_rejected",
				zap.String("path", logger.SanitizePath(r.URL.Path)),
				zap.String("origin", logger.SanitizeOrigin(r.Header.Get("Origin"))),
				zap.String("method", r.Method),
				zap.Bool("preflight", preflight),
			)
			rejectCORS(w)
			return
		}
		if preflight {
			w.Header().Set("Access-Control-Allow-Methods", p.methods)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rejectCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(InvalidCORSRequest))
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

// isSameOrigin reports whether the Origin header names the host the request was sent to.
func isSameOrigin(r *http.Request) bool {
	u, err := url.Parse(r.Header.Get("Origin"))
	if err != nil || u.Host == "" {
		return false
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return strings.EqualFold(u.Scheme, scheme) && strings.EqualFold(hostWithPort(u.Host, u.Scheme), hostWithPort(r.Host, scheme))
}

func hostWithPort(host, scheme string) string {
	if strings.LastIndexByte(host, ':') > strings.LastIndexByte(host, ']') {
		return host
	}
	if scheme == "https" {
		return host + ":443"
	}
	return host + ":80"
}
