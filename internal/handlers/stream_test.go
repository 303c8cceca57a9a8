package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/benvon/logstream/internal/converter"
	"github.com/benvon/logstream/internal/sse"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, broker *sse.Broker, mutate func(*RouterDeps)) http.Handler {
	t.Helper()

	deps := RouterDeps{
		Broker:          broker,
		Heartbeat:       time.Minute,
		RateLimit:       "1000-S",
		MaxRequestBytes: 1 << 10,
		Version:         VersionInfo{Version: "1.2.3", Commit: "abc123"},
		Logger:          zap.NewNop(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	h, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return h
}

// openStream connects to an SSE endpoint and consumes the ": connected" comment.
func openStream(t *testing.T, srvURL, stream string) (*http.Response, *bufio.Reader) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srvURL+"/api/kafka/"+stream, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	if frame := readFrame(t, reader); len(frame) != 1 || frame[0] != ": connected" {
		t.Fatalf("Expected connected comment, got %q", frame)
	}
	return resp, reader
}

// readFrame reads lines up to the blank line terminating an SSE frame.
func readFrame(t *testing.T, r *bufio.Reader) []string {
	t.Helper()

	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read frame (got %q so far): %v", lines, err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestSubscribe_DeliversUTF8Events(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	srv := httptest.NewServer(newTestRouter(t, broker, nil))
	defer srv.Close()
	defer broker.Close()

	resp, reader := openStream(t, srv.URL, "auth")

	ct, err := converter.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("Invalid Content-Type %q: %v", resp.Header.Get("Content-Type"), err)
	}
	if !converter.TextEventStream.Includes(ct) || ct.Charset() != converter.CharsetUTF8 {
		t.Errorf("Expected text/event-stream with UTF-8 charset, got %q", resp.Header.Get("Content-Type"))
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Expected Cache-Control no-cache, got %q", got)
	}
	if got := resp.Header.Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("Expected X-Accel-Buffering no, got %q", got)
	}

	payload := "사용자 로그인 성공: 홍길동 ✓"
	ev := broker.Publish("auth", payload)

	frame := readFrame(t, reader)
	want := []string{"id: " + ev.ID, "event: auth", "data: " + payload}
	if strings.Join(frame, "\n") != strings.Join(want, "\n") {
		t.Fatalf("Expected frame %q, got %q", want, frame)
	}
	for _, line := range frame {
		if !utf8.ValidString(line) || strings.ContainsRune(line, utf8.RuneError) {
			t.Errorf("Frame line %q contains substitution characters", line)
		}
	}
}

func TestSubscribe_StreamEventName(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	srv := httptest.NewServer(newTestRouter(t, broker, nil))
	defer srv.Close()
	defer broker.Close()

	_, reader := openStream(t, srv.URL, "stream")
	broker.Publish("stream", "line one\nline two")

	frame := readFrame(t, reader)
	if len(frame) != 4 {
		t.Fatalf("Expected 4 lines, got %q", frame)
	}
	if frame[1] != "event: streams" {
		t.Errorf("Expected event name streams, got %q", frame[1])
	}
	if frame[2] != "data: line one" || frame[3] != "data: line two" {
		t.Errorf("Expected one data line per payload line, got %q", frame[2:])
	}
}

func TestSubscribe_Heartbeat(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	srv := httptest.NewServer(newTestRouter(t, broker, func(d *RouterDeps) {
		d.Heartbeat = 20 * time.Millisecond
	}))
	defer srv.Close()
	defer broker.Close()

	_, reader := openStream(t, srv.URL, "unauth")
	if frame := readFrame(t, reader); len(frame) != 1 || frame[0] != ": ping" {
		t.Errorf("Expected ping comment, got %q", frame)
	}
}

func TestSubscribe_EndsWhenBrokerCloses(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	srv := httptest.NewServer(newTestRouter(t, broker, nil))
	defer srv.Close()

	_, reader := openStream(t, srv.URL, "auth_failed")
	broker.Close()

	if _, err := reader.ReadString('\n'); err == nil {
		t.Error("Expected the stream to end after the broker closed")
	}
}

func TestSubscribe_UnknownStream(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()
	h := NewStreamHandler(broker, converter.NewStringConverter(), converter.NewConverters(), 0, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/kafka/nope", nil)
	req = mux.SetURLVars(req, map[string]string{"stream": "nope"})
	w := httptest.NewRecorder()
	h.Subscribe(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["error"] != "Not Found" {
		t.Errorf("Expected error 'Not Found', got %v", body["error"])
	}
	if broker.SubscriberCount("nope") != 0 {
		t.Error("Expected no subscription for an unknown stream")
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		contentType string
		accept      string
		body        string
		wantStatus  int
		wantData    string
	}{
		{
			name:        "plain text",
			path:        "/api/kafka/auth",
			contentType: "text/plain; charset=UTF-8",
			body:        "로그인 성공",
			wantStatus:  http.StatusAccepted,
			wantData:    "로그인 성공",
		},
		{
			name:        "json payload kept verbatim",
			path:        "/api/kafka/stream",
			contentType: "application/json",
			accept:      "application/json",
			body:        `{"user":"alice","action":"login"}`,
			wantStatus:  http.StatusAccepted,
			wantData:    `{"user":"alice","action":"login"}`,
		},
		{
			name:        "latin1 body decoded",
			path:        "/api/kafka/auth",
			contentType: "text/plain; charset=ISO-8859-1",
			body:        "caf\xe9",
			wantStatus:  http.StatusAccepted,
			wantData:    "café",
		},
		{
			name:        "unknown stream",
			path:        "/api/kafka/other",
			contentType: "text/plain",
			body:        "x",
			wantStatus:  http.StatusNotFound,
		},
		{
			name:        "unsupported content type",
			path:        "/api/kafka/auth",
			contentType: "application/xml",
			body:        "<x/>",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:       "missing content type",
			path:       "/api/kafka/auth",
			body:       "x",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "empty payload",
			path:        "/api/kafka/auth",
			contentType: "text/plain",
			body:        "",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "response not acceptable",
			path:        "/api/kafka/auth",
			contentType: "text/plain",
			accept:      "text/plain",
			body:        "x",
			wantStatus:  http.StatusNotAcceptable,
		},
		{
			name:        "body too large",
			path:        "/api/kafka/auth",
			contentType: "text/plain",
			body:        strings.Repeat("x", 2048),
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
			defer broker.Close()
			h := newTestRouter(t, broker, nil)

			sub := broker.Subscribe(strings.TrimPrefix(tt.path, "/api/kafka/"))
			defer sub.Close()

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusAccepted {
				if tt.wantStatus != http.StatusNotAcceptable && tt.wantStatus != http.StatusNotFound {
					select {
					case ev := <-sub.Events():
						t.Errorf("Expected nothing published, got %+v", ev)
					default:
					}
				}
				return
			}

			var resp PublishResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Subscribers != 1 {
				t.Errorf("Expected 1 subscriber, got %d", resp.Subscribers)
			}

			select {
			case ev := <-sub.Events():
				if ev.ID != resp.ID {
					t.Errorf("Expected event id %q, got %q", resp.ID, ev.ID)
				}
				if ev.Data != tt.wantData {
					t.Errorf("Expected data %q, got %q", tt.wantData, ev.Data)
				}
			case <-time.After(time.Second):
				t.Fatal("Expected the event to be delivered")
			}
		})
	}
}

func TestListStreams(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()
	sub := broker.Subscribe("auth")
	defer sub.Close()

	w := httptest.NewRecorder()
	newTestRouter(t, broker, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/kafka", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		Data []StreamInfo `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body.Data) != len(sse.Streams) {
		t.Fatalf("Expected %d streams, got %d", len(sse.Streams), len(body.Data))
	}
	for _, s := range body.Data {
		want := 0
		if s.Name == "auth" {
			want = 1
		}
		if s.Subscribers != want {
			t.Errorf("Stream %s: expected %d subscribers, got %d", s.Name, want, s.Subscribers)
		}
	}
}
