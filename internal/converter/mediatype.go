package converter

import (
	"fmt"
	"mime"
	"sort"
	"strconv"
	"strings"
)

const (
	wildcardType = "*"
	paramCharset = "charset"
	paramQuality = "q"
)

// MediaType is a parsed Content-Type or Accept element.
type MediaType struct {
	Type    string
	Subtype string
	Params  map[string]string
}

// Common media types
var (
	All                    = MediaType{Type: wildcardType, Subtype: wildcardType}
	TextPlain              = MediaType{Type: "text", Subtype: "plain"}
	TextEventStream        = MediaType{Type: "text", Subtype: "event-stream"}
	ApplicationJSON        = MediaType{Type: "application", Subtype: "json"}
	ApplicationAnyJSON     = MediaType{Type: "application", Subtype: "*+json"}
	ApplicationOctetStream = MediaType{Type: "application", Subtype: "octet-stream"}
)

// ParseMediaType parses a single media type such as "text/plain;charset=UTF-8".
func ParseMediaType(s string) (MediaType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MediaType{}, fmt.Errorf("empty media type")
	}
	// mime.ParseMediaType rejects a bare "*"
	if s == wildcardType {
		return All, nil
	}
	full, params, err := mime.ParseMediaType(s)
	if err != nil {
		return MediaType{}, fmt.Errorf("parse media type %q: %w", s, err)
	}
	typ, sub, ok := strings.Cut(full, "/")
	if !ok || typ == "" || sub == "" {
		return MediaType{}, fmt.Errorf("parse media type %q: missing subtype", s)
	}
	if typ == wildcardType && sub != wildcardType {
		return MediaType{}, fmt.Errorf("parse media type %q: wildcard type with concrete subtype", s)
	}
	mt := MediaType{Type: typ, Subtype: sub}
	if len(params) > 0 {
		mt.Params = params
	}
	return mt, nil
}

// MustParseMediaType is ParseMediaType for literals.
func MustParseMediaType(s string) MediaType {
	mt, err := ParseMediaType(s)
	if err != nil {
		panic(err)
	}
	return mt
}

// ParseAccept parses an Accept header value. Elements that fail to parse are skipped.
// The result is ordered by quality, then by specificity. An empty header means */*.
func ParseAccept(header string) []MediaType {
	if strings.TrimSpace(header) == "" {
		return []MediaType{All}
	}
	var out []MediaType
	for _, part := range strings.Split(header, ",") {
		mt, err := ParseMediaType(part)
		if err != nil {
			continue
		}
		if mt.Quality() <= 0 {
			continue
		}
		out = append(out, mt)
	}
	sort.SliceStable(out, func(i, j int) bool {
		qi, qj := out[i].Quality(), out[j].Quality()
		if qi != qj {
			return qi > qj
		}
		return out[i].specificity() > out[j].specificity()
	})
	return out
}

// Quality returns the q parameter, 1 when absent. A malformed or out-of-range
// value yields 0, so ParseAccept drops the element.
func (m MediaType) Quality() float64 {
	v, ok := m.Params[paramQuality]
	if !ok {
		return 1
	}
	q, err := strconv.ParseFloat(v, 64)
	if err != nil || q < 0 || q > 1 {
		return 0
	}
	return q
}

func (m MediaType) specificity() int {
	switch {
	case m.Type == wildcardType:
		return 0
	case m.IsWildcardSubtype():
		return 1
	default:
		n := 2
		for k := range m.Params {
			if k != paramQuality {
				n++
			}
		}
		return n
	}
}

// IsWildcardType reports whether the type is "*".
func (m MediaType) IsWildcardType() bool {
	return m.Type == wildcardType
}

// IsWildcardSubtype reports whether the subtype is "*" or "*+suffix".
func (m MediaType) IsWildcardSubtype() bool {
	return m.Subtype == wildcardType || strings.HasPrefix(m.Subtype, "*+")
}

// IsWildcard reports whether either part is a wildcard.
func (m MediaType) IsWildcard() bool {
	return m.IsWildcardType() || m.IsWildcardSubtype()
}

// IsZero reports whether m is the zero value.
func (m MediaType) IsZero() bool {
	return m.Type == "" && m.Subtype == ""
}

// Charset returns the charset parameter, or "" when absent.
func (m MediaType) Charset() string {
	return m.Params[paramCharset]
}

// WithCharset returns a copy of m with the charset parameter set.
func (m MediaType) WithCharset(charset string) MediaType {
	params := make(map[string]string, len(m.Params)+1)
	for k, v := range m.Params {
		params[k] = v
	}
	params[paramCharset] = charset
	m.Params = params
	return m
}

// WithoutParams returns type/subtype only.
func (m MediaType) WithoutParams() MediaType {
	return MediaType{Type: m.Type, Subtype: m.Subtype}
}

// Includes reports whether m includes other: "*/*" includes everything,
// "text/*" includes "text/plain", "application/*+json" includes "application/json".
func (m MediaType) Includes(other MediaType) bool {
	if m.IsWildcardType() {
		return true
	}
	if !strings.EqualFold(m.Type, other.Type) {
		return false
	}
	if strings.EqualFold(m.Subtype, other.Subtype) || m.Subtype == wildcardType {
		return true
	}
	if suffix, ok := strings.CutPrefix(m.Subtype, "*+"); ok {
		_, otherSuffix, hasSuffix := strings.Cut(other.Subtype, "+")
		if hasSuffix {
			return strings.EqualFold(suffix, otherSuffix)
		}
		return strings.EqualFold(suffix, other.Subtype)
	}
	return false
}

// IsCompatibleWith is the symmetric form of Includes.
func (m MediaType) IsCompatibleWith(other MediaType) bool {
	return m.Includes(other) || other.Includes(m)
}

// String formats m as a header value. Parameters are written in sorted order.
func (m MediaType) String() string {
	if m.IsZero() {
		return ""
	}
	params := make(map[string]string, len(m.Params))
	for k, v := range m.Params {
		if k != paramQuality {
			params[k] = v
		}
	}
	return mime.FormatMediaType(m.Type+"/"+m.Subtype, params)
}
