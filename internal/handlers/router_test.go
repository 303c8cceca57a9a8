package handlers

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/benvon/logstream/internal/sse"
	"github.com/benvon/logstream/internal/webconfig"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestRouter_Preflight(t *testing.T) {
	t.Parallel()

	origins := []string{"https://app.example.com", "http://localhost:3000", "https://admin.example.org"}
	paths := []string{"/api/kafka/stream", "/api/kafka/auth_failed", "/api/not-routed"}

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()
	h := newTestRouter(t, broker, nil)

	for _, origin := range origins {
		for _, path := range paths {
			path := path
			t.Run(origin+path, func(t *testing.T) {
				t.Parallel()

				req := httptest.NewRequest(http.MethodOptions, path, nil)
				req.Header.Set("Origin", origin)
				req.Header.Set("Access-Control-Request-Method", "GET")
				req.Header.Set("Access-Control-Request-Headers", "Last-Event-ID")
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)

				if w.Code != http.StatusNoContent {
					t.Fatalf("Expected status 204, got %d", w.Code)
				}
				if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
					t.Errorf("Expected reflected origin %q, got %q", origin, got)
				}
				if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
					t.Errorf("Expected credentials allowed, got %q", got)
				}
				if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
					t.Errorf("Expected max age 3600, got %q", got)
				}

				methods := strings.Split(strings.ToUpper(w.Header().Get("Access-Control-Allow-Methods")), ",")
				for i := range methods {
					methods[i] = strings.TrimSpace(methods[i])
				}
				sort.Strings(methods)
				want := []string{"DELETE", "GET", "OPTIONS", "PATCH", "POST", "PUT"}
				if strings.Join(methods, ",") != strings.Join(want, ",") {
					t.Errorf("Expected methods %v, got %v", want, methods)
				}
			})
		}
	}
}

func TestRouter_CORSScope(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()

	restricted := &webconfig.WebConfig{CORS: []webconfig.CORSMapping{{
		PathPattern:           "/api/**",
		AllowedOriginPatterns: []string{"https://*.example.com"},
		AllowedMethods:        []string{"GET", "POST"},
		AllowCredentials:      true,
		MaxAge:                600,
	}}}

	tests := []struct {
		name       string
		webConfig  *webconfig.WebConfig
		method     string
		path       string
		origin     string
		preflight  string
		wantStatus int
		wantACAO   string
	}{
		{
			name:       "health is outside the mapping",
			method:     http.MethodGet,
			path:       "/healthz",
			origin:     "https://app.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "actual request on api",
			method:     http.MethodGet,
			path:       "/api/kafka",
			origin:     "https://app.example.com",
			wantStatus: http.StatusOK,
			wantACAO:   "https://app.example.com",
		},
		{
			name:       "disallowed preflight method",
			method:     http.MethodOptions,
			path:       "/api/kafka/auth",
			origin:     "https://app.example.com",
			preflight:  "TRACE",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "origin outside configured patterns",
			webConfig:  restricted,
			method:     http.MethodGet,
			path:       "/api/kafka",
			origin:     "https://evil.example.net",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "origin matching configured pattern",
			webConfig:  restricted,
			method:     http.MethodOptions,
			path:       "/api/kafka/unauth",
			origin:     "https://tenant.example.com",
			preflight:  "POST",
			wantStatus: http.StatusNoContent,
			wantACAO:   "https://tenant.example.com",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestRouter(t, broker, func(d *RouterDeps) { d.WebConfig = tt.webConfig })

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight != "" {
				req.Header.Set("Access-Control-Request-Method", tt.preflight)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantACAO {
				t.Errorf("Expected Access-Control-Allow-Origin %q, got %q", tt.wantACAO, got)
			}
		})
	}
}

func TestRouter_SecurityHeadersAndNotFound(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()
	h := newTestRouter(t, broker, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON error body, got Content-Type %q", ct)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected security headers, got X-Content-Type-Options %q", got)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"version":"1.2.3"`) {
		t.Errorf("Unexpected version response %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_RateLimitHeaders(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()
	h := newTestRouter(t, broker, func(d *RouterDeps) { d.RateLimit = "1-M" })

	statuses := make([]int, 2)
	for i := range statuses {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/kafka", nil))
		statuses[i] = w.Code
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 429], got %v", statuses)
	}

	// Health checks are not rate limited.
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected /healthz to stay available, got %d", w.Code)
		}
	}
}

func TestRouter_Tracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()
	h := newTestRouter(t, broker, func(d *RouterDeps) { d.TracerProvider = tp })

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/kafka", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if name := spans[0].Name(); !strings.Contains(name, "/api/kafka") {
		t.Errorf("Expected span named after the route, got %q", name)
	}
}

func TestNewRouter_Errors(t *testing.T) {
	t.Parallel()

	broker := sse.NewBroker(sse.DefaultBufferSize, zap.NewNop())
	defer broker.Close()

	tests := []struct {
		name string
		deps RouterDeps
	}{
		{name: "missing broker", deps: RouterDeps{}},
		{name: "invalid rate", deps: RouterDeps{Broker: broker, RateLimit: "lots"}},
		{
			name: "invalid cors mapping",
			deps: RouterDeps{Broker: broker, WebConfig: &webconfig.WebConfig{CORS: []webconfig.CORSMapping{{
				PathPattern:      "/api/**",
				AllowedOrigins:   []string{"*"},
				AllowCredentials: true,
			}}}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewRouter(tt.deps); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
