package converter

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// CharsetUTF8 is the only charset StringConverter writes.
const CharsetUTF8 = "UTF-8"

// StringConverter writes string values as UTF-8 text and reads request bodies into strings.
type StringConverter struct {
	charset string
	types   []MediaType
}

// NewStringConverter creates a string converter for the given media types.
// With no types it supports text/plain and */*.
func NewStringConverter(types ...MediaType) *StringConverter {
	if len(types) == 0 {
		types = []MediaType{TextPlain, All}
	}
	supported := make([]MediaType, len(types))
	copy(supported, types)
	return &StringConverter{charset: CharsetUTF8, types: supported}
}

// Charset returns the charset used when writing.
func (c *StringConverter) Charset() string {
	return c.charset
}

// SupportedMediaTypes implements MessageConverter.
func (c *StringConverter) SupportedMediaTypes() []MediaType {
	out := make([]MediaType, len(c.types))
	copy(out, c.types)
	return out
}

// CanRead implements MessageConverter.
func (c *StringConverter) CanRead(target any, mt MediaType) bool {
	if _, ok := target.(*string); !ok {
		return false
	}
	return supports(c.types, mt)
}

// CanWrite implements MessageConverter.
func (c *StringConverter) CanWrite(v any, mt MediaType) bool {
	if _, ok := v.(string); !ok {
		return false
	}
	return supports(c.types, mt)
}

// ContentType resolves the Content-Type written for mt. JSON carries no charset
// parameter, every other type is labelled with the converter charset.
func (c *StringConverter) ContentType(mt MediaType) MediaType {
	ct := resolve(c.types, mt).WithoutParams()
	if ApplicationAnyJSON.Includes(ct) {
		return ct
	}
	return ct.WithCharset(c.charset)
}

// PrepareHeaders sets Content-Type for mt on h and returns the resolved type.
func (c *StringConverter) PrepareHeaders(h http.Header, mt MediaType) MediaType {
	ct := c.ContentType(mt)
	h.Set("Content-Type", ct.String())
	return ct
}

// Encode returns s as UTF-8 bytes. Invalid sequences become U+FFFD.
func (c *StringConverter) Encode(s string) []byte {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return []byte(s)
}

// Write implements MessageConverter.
func (c *StringConverter) Write(w http.ResponseWriter, status int, v any, mt MediaType) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("string converter cannot write %T", v)
	}
	ct := c.PrepareHeaders(w.Header(), mt)
	body := c.Encode(s)
	if !TextEventStream.Includes(ct) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write string body: %w", err)
	}
	return nil
}

// Read implements MessageConverter. The body is decoded from the charset named
// in mt, UTF-8 when absent.
func (c *StringConverter) Read(body io.Reader, mt MediaType, target any) error {
	dst, ok := target.(*string)
	if !ok {
		return fmt.Errorf("string converter cannot read into %T", target)
	}
	reader := body
	if cs := mt.Charset(); cs != "" && !strings.EqualFold(cs, CharsetUTF8) {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return fmt.Errorf("charset %q: %w", cs, ErrUnsupportedMediaType)
		}
		reader = enc.NewDecoder().Reader(body)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read string body: %w", err)
	}
	*dst = string(c.Encode(string(data)))
	return nil
}

var _ MessageConverter = (*StringConverter)(nil)
