// Package validation holds the shared validator instance and the custom tags used by
// configuration structs.
package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// wildcard matches any origin, method or header.
const wildcard = "*"

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Registration only fails for programming errors.
	for tag, fn := range map[string]validator.Func{
		"http_method":    validateToken,
		"header_name":    validateToken,
		"cors_origin":    validateOrigin,
		"origin_pattern": validateOriginPattern,
	} {
		if err := Validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register %s validator: %v", tag, err))
		}
	}
}

// validateToken accepts "*" or an HTTP token (RFC 9110 section 5.6.2).
func validateToken(fl validator.FieldLevel) bool {
	return IsToken(fl.Field().String())
}

// validateOrigin accepts "*" or a serialized origin: scheme://host[:port].
func validateOrigin(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == wildcard {
		return true
	}
	return ValidateOrigin(value) == nil
}

// validateOriginPattern accepts "*" or an origin containing at most one "*".
func validateOriginPattern(fl validator.FieldLevel) bool {
	return ValidateOriginPattern(fl.Field().String()) == nil
}

// IsToken reports whether s is "*" or a non-empty HTTP token.
func IsToken(s string) bool {
	if s == wildcard {
		return true
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// ValidateOrigin checks that origin is scheme://host[:port] without path, query or
// user info.
func ValidateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid origin %q: scheme and host are required", origin)
	}
	if u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid origin %q: only scheme, host and port are allowed", origin)
	}
	return nil
}

// ValidateOriginPattern checks an origin pattern. The CORS engine supports a single
// "*" per pattern, e.g. "https://*.example.com".
func ValidateOriginPattern(pattern string) error {
	if pattern == wildcard {
		return nil
	}
	if n := strings.Count(pattern, wildcard); n > 1 {
		return fmt.Errorf("invalid origin pattern %q: at most one %q is supported", pattern, wildcard)
	}
	// "0" is valid both as a host label and as a port.
	return ValidateOrigin(strings.Replace(pattern, wildcard, "0", 1))
}
