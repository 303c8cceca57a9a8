package sse

import (
	"errors"
	"strings"
)

// ErrUnknownStream is returned for stream names the server does not serve.
var ErrUnknownStream = errors.New("unknown stream")

// Stream is a named SSE channel and the event name its frames carry.
type Stream struct {
	Name  string `json:"name" yaml:"name"`
	Event string `json:"event" yaml:"event"`
}

// Streams are the audit log streams served under /api/kafka/{name}.
var Streams = []Stream{
	{Name: "stream", Event: "streams"},
	{Name: "auth", Event: "auth"},
	{Name: "auth_failed", Event: "auth_failed"},
	{Name: "unauth", Event: "unauth"},
}

// LookupStream returns the stream called name.
func LookupStream(name string) (Stream, error) {
	for _, s := range Streams {
		if s.Name == name {
			return s, nil
		}
	}
	return Stream{}, ErrUnknownStream
}

// StreamNames returns the names of every stream in order.
func StreamNames() []string {
	names := make([]string, len(Streams))
	for i, s := range Streams {
		names[i] = s.Name
	}
	return names
}

// eventName maps a stream to the event name frames on it carry. Unknown streams use
// their own name.
func eventName(stream string) string {
	if s, err := LookupStream(stream); err == nil {
		return s.Event
	}
	return stream
}

// Event is one message delivered to subscribers of a stream.
type Event struct {
	ID     string `json:"id"`
	Stream string `json:"stream"`
	Name   string `json:"name"`
	Data   string `json:"data"`
}

// Frame renders the event in the text/event-stream wire format. Each payload line
// becomes its own data field.
func (e Event) Frame() string {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString("id: ")
		b.WriteString(singleLine(e.ID))
		b.WriteByte('\n')
	}
	if e.Name != "" {
		b.WriteString("event: ")
		b.WriteString(singleLine(e.Name))
		b.WriteByte('\n')
	}
	for _, line := range splitLines(e.Data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// Comment renders an SSE comment line, ignored by EventSource clients.
func Comment(text string) string {
	var b strings.Builder
	for _, line := range splitLines(text) {
		b.WriteString(": ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
