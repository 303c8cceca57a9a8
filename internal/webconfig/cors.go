package webconfig

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/benvon/logstream/internal/validation"
)

// Wildcard allows any origin, method or header.
const Wildcard = "*"

// Defaults applied by CORSMapping.ApplyDefaults.
const (
	DefaultMaxAge = 1800
)

// ErrCredentialsWithWildcardOrigin is returned when credentials are allowed together
// with a literal "*" origin. Browsers reject that combination; use an origin pattern.
var ErrCredentialsWithWildcardOrigin = errors.New(`allow_credentials cannot be combined with allowed_origins "*"; use allowed_origin_patterns`)

// standardMethods is what "*" expands to in AllowedMethods.
var standardMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodTrace,
}

// CORSMapping is the CORS policy for every request path matching PathPattern.
type CORSMapping struct {
	PathPattern           string   `yaml:"path_pattern" json:"path_pattern" validate:"required,startswith=/"`
	AllowedOrigins        []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty" validate:"omitempty,dive,cors_origin"`
	AllowedOriginPatterns []string `yaml:"allowed_origin_patterns,omitempty" json:"allowed_origin_patterns,omitempty" validate:"omitempty,dive,origin_pattern"`
	AllowedMethods        []string `yaml:"allowed_methods,omitempty" json:"allowed_methods,omitempty" validate:"omitempty,dive,http_method"`
	AllowedHeaders        []string `yaml:"allowed_headers,omitempty" json:"allowed_headers,omitempty" validate:"omitempty,dive,header_name"`
	ExposedHeaders        []string `yaml:"exposed_headers,omitempty" json:"exposed_headers,omitempty" validate:"omitempty,dive,header_name"`
	AllowCredentials      bool     `yaml:"allow_credentials" json:"allow_credentials"`
	MaxAge                int      `yaml:"max_age,omitempty" json:"max_age,omitempty" validate:"gte=0"`
}

// APIMapping is the policy for /api/**: any origin (reflected, so credentials work),
// the REST methods plus OPTIONS, any request header, and the response headers an
// SSE client needs to read.
func APIMapping() CORSMapping {
	return CORSMapping{
		PathPattern:           "/api/**",
		AllowedOriginPatterns: []string{Wildcard},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodPut,
			http.MethodPatch,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{Wildcard},
		AllowCredentials: true,
		ExposedHeaders: []string{
			"Cache-Control",
			"Content-Language",
			"Content-Type",
			"Expires",
			"Last-Modified",
			"Pragma",
			"Connection",
			"Access-Control-Allow-Origin",
		},
		MaxAge: 3600,
	}
}

// DefaultCORSMappings returns the built-in registry: exactly one mapping, for /api/**.
func DefaultCORSMappings() []CORSMapping {
	return []CORSMapping{APIMapping()}
}

// ApplyDefaults fills unset fields: GET, HEAD and POST; any header; a 30 minute
// max age; and any origin pattern when no origin of either kind is set.
func (m *CORSMapping) ApplyDefaults() {
	if len(m.AllowedOrigins) == 0 && len(m.AllowedOriginPatterns) == 0 {
		m.AllowedOriginPatterns = []string{Wildcard}
	}
	if len(m.AllowedMethods) == 0 {
		m.AllowedMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost}
	}
	if len(m.AllowedHeaders) == 0 {
		m.AllowedHeaders = []string{Wildcard}
	}
	if m.MaxAge == 0 {
		m.MaxAge = DefaultMaxAge
	}
}

// Validate checks field constraints and the credentials/origin combination.
func (m CORSMapping) Validate() error {
	if err := validation.Validate.Struct(m); err != nil {
		return fmt.Errorf("cors mapping %q: %w", m.PathPattern, err)
	}
	if m.AllowCredentials {
		for _, o := range m.AllowedOrigins {
			if o == Wildcard {
				return fmt.Errorf("cors mapping %q: %w", m.PathPattern, ErrCredentialsWithWildcardOrigin)
			}
		}
	}
	return nil
}

// Origins returns exact origins and origin patterns in one list, lower-cased and
// deduplicated.
func (m CORSMapping) Origins() []string {
	return dedupe(append(append([]string{}, m.AllowedOrigins...), m.AllowedOriginPatterns...), strings.ToLower)
}

// Methods returns the allowed methods upper-cased, with "*" expanded.
func (m CORSMapping) Methods() []string {
	for _, method := range m.AllowedMethods {
		if method == Wildcard {
			return append([]string{}, standardMethods...)
		}
	}
	return dedupe(m.AllowedMethods, strings.ToUpper)
}

// AllowsAnyMethod reports whether AllowedMethods contains "*".
func (m CORSMapping) AllowsAnyMethod() bool {
	for _, method := range m.AllowedMethods {
		if method == Wildcard {
			return true
		}
	}
	return false
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(strings.TrimSpace(v))
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
