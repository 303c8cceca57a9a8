// Package webconfig holds the web layer configuration applied at startup: the CORS
// mappings handed to the CORS middleware and the string converter contributed to the
// message converter list.
package webconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/benvon/logstream/internal/converter"
	"gopkg.in/yaml.v3"
)

// WebConfig is the effective web configuration. It is built once and read-only afterwards.
type WebConfig struct {
	CORS []CORSMapping `yaml:"cors" json:"cors"`
}

// Default returns the built-in configuration.
func Default() *WebConfig {
	return &WebConfig{CORS: DefaultCORSMappings()}
}

// Validate checks every mapping.
func (c *WebConfig) Validate() error {
	if len(c.CORS) == 0 {
		return errors.New("web config: at least one cors mapping is required")
	}
	for _, m := range c.CORS {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the built-in configuration when path is empty, otherwise the mappings
// read from the YAML file at path with defaults applied.
func Load(path string) (*WebConfig, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open web config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load web config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a YAML web config document, applies defaults and validates it.
// A document without a cors key keeps the built-in mappings.
func Decode(r io.Reader) (*WebConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read web config: %w", err)
	}

	var cfg WebConfig
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse web config: %w", err)
		}
	}
	if cfg.CORS == nil {
		cfg.CORS = DefaultCORSMappings()
	}
	for i := range cfg.CORS {
		cfg.CORS[i].ApplyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal renders the configuration as YAML.
func (c *WebConfig) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode web config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode web config: %w", err)
	}
	return buf.Bytes(), nil
}

// StringConverterMediaTypes returns the media types the UTF-8 string converter
// handles. Each call returns a new slice.
func StringConverterMediaTypes() []converter.MediaType {
	return []converter.MediaType{
		converter.TextPlain,
		converter.TextEventStream,
		converter.ApplicationJSON,
	}
}

// NewStringConverter builds the UTF-8 string converter for text/plain,
// text/event-stream and application/json. The server constructs it once and passes
// it to the components that write through it directly.
func NewStringConverter() *converter.StringConverter {
	return converter.NewStringConverter(StringConverterMediaTypes()...)
}

// ConfigureMessageConverters appends the string converter to list.
func ConfigureMessageConverters(list *converter.Converters) {
	list.Add(NewStringConverter())
}

// MessageConverters returns the full converter list used by the handlers: the string
// converter followed by the JSON converter for structured responses.
func MessageConverters() *converter.Converters {
	list := converter.NewConverters()
	ConfigureMessageConverters(list)
	list.Add(converter.NewJSONConverter())
	return list
}
