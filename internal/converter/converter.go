// Package converter translates between HTTP bodies and in-process values
// based on the Content-Type and Accept headers.
package converter

import (
	"errors"
	"io"
	"net/http"
)

var (
	// ErrNotAcceptable means no converter can produce any of the accepted media types.
	ErrNotAcceptable = errors.New("not acceptable")
	// ErrUnsupportedMediaType means no converter can read the request content type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// MessageConverter reads request bodies into values and writes values as response bodies.
type MessageConverter interface {
	// SupportedMediaTypes lists the media types in preference order.
	SupportedMediaTypes() []MediaType
	// CanRead reports whether the converter can decode mt into target.
	CanRead(target any, mt MediaType) bool
	// CanWrite reports whether the converter can encode v as mt.
	// A wildcard mt means any supported type is acceptable.
	CanWrite(v any, mt MediaType) bool
	// Read decodes body, declared as mt, into target.
	Read(body io.Reader, mt MediaType, target any) error
	// Write encodes v as mt with the given status.
	Write(w http.ResponseWriter, status int, v any, mt MediaType) error
}

// supports reports whether any of types is compatible with mt. The zero
// MediaType is treated as */*.
func supports(types []MediaType, mt MediaType) bool {
	if mt.IsZero() {
		return true
	}
	for _, t := range types {
		if t.IsCompatibleWith(mt) {
			return true
		}
	}
	return false
}

// resolve picks the concrete media type to write for the requested mt.
func resolve(types []MediaType, mt MediaType) MediaType {
	if !mt.IsZero() && !mt.IsWildcard() {
		return mt
	}
	for _, t := range types {
		if t.IsWildcard() {
			continue
		}
		if mt.IsZero() || mt.Includes(t) {
			return t
		}
	}
	return types[0]
}
