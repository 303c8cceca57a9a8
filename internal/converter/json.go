package converter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
)

// JSONConverter writes any value as JSON and reads JSON into pointer targets.
type JSONConverter struct {
	types []MediaType
}

// NewJSONConverter creates a converter for application/json and application/*+json.
func NewJSONConverter() *JSONConverter {
	return &JSONConverter{types: []MediaType{ApplicationJSON, ApplicationAnyJSON}}
}

// SupportedMediaTypes implements MessageConverter.
func (c *JSONConverter) SupportedMediaTypes() []MediaType {
	out := make([]MediaType, len(c.types))
	copy(out, c.types)
	return out
}

// CanRead implements MessageConverter.
func (c *JSONConverter) CanRead(target any, mt MediaType) bool {
	if target == nil || reflect.TypeOf(target).Kind() != reflect.Pointer {
		return false
	}
	return supports(c.types, mt)
}

// CanWrite implements MessageConverter.
func (c *JSONConverter) CanWrite(_ any, mt MediaType) bool {
	return supports(c.types, mt)
}

// Read implements MessageConverter.
func (c *JSONConverter) Read(body io.Reader, _ MediaType, target any) error {
	if err := json.NewDecoder(body).Decode(target); err != nil {
		return fmt.Errorf("decode json body: %w", err)
	}
	return nil
}

// Write implements MessageConverter.
func (c *JSONConverter) Write(w http.ResponseWriter, status int, v any, mt MediaType) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json body: %w", err)
	}
	w.Header().Set("Content-Type", resolve(c.types, mt).WithoutParams().String())
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write json body: %w", err)
	}
	return nil
}

var _ MessageConverter = (*JSONConverter)(nil)
