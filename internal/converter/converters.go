package converter

import (
	"fmt"
	"net/http"
	"sync"
)

// Converters is the ordered list of converters used to read requests and write
// responses. Earlier converters win.
type Converters struct {
	mu   sync.RWMutex
	list []MessageConverter
}

// NewConverters creates a list holding cs in order.
func NewConverters(cs ...MessageConverter) *Converters {
	l := &Converters{}
	l.Add(cs...)
	return l
}

// Add appends converters to the end of the list.
func (l *Converters) Add(cs ...MessageConverter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range cs {
		if c != nil {
			l.list = append(l.list, c)
		}
	}
}

// All returns a snapshot of the list.
func (l *Converters) All() []MessageConverter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]MessageConverter, len(l.list))
	copy(out, l.list)
	return out
}

// Len returns the number of converters.
func (l *Converters) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.list)
}

// Writer returns the first converter able to write v for the Accept header,
// together with the media type it matched.
func (l *Converters) Writer(accept string, v any) (MessageConverter, MediaType, error) {
	converters := l.All()
	for _, mt := range ParseAccept(accept) {
		for _, c := range converters {
			if c.CanWrite(v, mt) {
				return c, mt, nil
			}
		}
	}
	return nil, MediaType{}, ErrNotAcceptable
}

// Write negotiates the response type from r's Accept header and writes v.
func (l *Converters) Write(w http.ResponseWriter, r *http.Request, status int, v any) error {
	c, mt, err := l.Writer(r.Header.Get("Accept"), v)
	if err != nil {
		return err
	}
	return c.Write(w, status, v, mt)
}

// Read decodes r's body into target using the request Content-Type.
// A request without Content-Type is treated as application/octet-stream.
func (l *Converters) Read(r *http.Request, target any) error {
	mt := ApplicationOctetStream
	if raw := r.Header.Get("Content-Type"); raw != "" {
		parsed, err := ParseMediaType(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
		}
		mt = parsed
	}
	for _, c := range l.All() {
		if c.CanRead(target, mt) {
			return c.Read(r.Body, mt, target)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mt.WithoutParams())
}
