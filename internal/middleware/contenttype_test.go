package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/logstream/internal/converter"
	"go.uber.org/zap"
)

func TestContentType(t *testing.T) {
	t.Parallel()

	supported := []converter.MediaType{converter.TextPlain, converter.ApplicationJSON}
	handler := ContentType(supported, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{name: "GET without body", method: http.MethodGet, want: http.StatusAccepted},
		{name: "json", method: http.MethodPost, contentType: "application/json", want: http.StatusAccepted},
		{name: "json with charset", method: http.MethodPost, contentType: "application/json; charset=utf-8", want: http.StatusAccepted},
		{name: "plain text", method: http.MethodPut, contentType: "text/plain;charset=ISO-8859-1", want: http.StatusAccepted},
		{name: "missing", method: http.MethodPost, want: http.StatusBadRequest},
		{name: "malformed", method: http.MethodPost, contentType: "text", want: http.StatusBadRequest},
		{name: "xml", method: http.MethodPatch, contentType: "application/xml", want: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/api/kafka/stream", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}
