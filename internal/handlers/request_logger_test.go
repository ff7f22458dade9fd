package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/norcalbattery/storefront/internal/config"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		trust     bool
		forwarded string
		realIP    string
		want      string
	}{
		{name: "peer address", want: "203.0.113.7"},
		{name: "forwarded ignored without trust", forwarded: "10.0.0.1", want: "203.0.113.7"},
		{name: "last forwarded hop behind proxy", trust: true, forwarded: "10.0.0.1, 198.51.100.4", want: "198.51.100.4"},
		{name: "real ip behind proxy", trust: true, realIP: "198.51.100.5", want: "198.51.100.5"},
		{name: "trusted without headers", trust: true, want: "203.0.113.7"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &Handlers{config: &config.Config{TrustProxyHeaders: tt.trust}}
			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			req.RemoteAddr = "203.0.113.7:51234"
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-Ip", tt.realIP)
			}

			if got := h.clientIP(req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRequestIDFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{name: "generated when missing"},
		{name: "client id echoed", header: "req-123", wantSame: true},
		{name: "oversized id replaced", header: strings.Repeat("a", maxRequestIDLength+1)},
		{name: "control characters replaced", header: "req\x01id"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			got := requestIDFromRequest(req)
			if got == "" {
				t.Fatal("expected a request id")
			}
			if (got == tt.header) != tt.wantSame {
				t.Fatalf("unexpected request id %q for header %q", got, tt.header)
			}
		})
	}
}

func TestRequestLogger_TagsGuestAndFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	var buf bytes.Buffer
	env.handlers.logger = slog.New(slog.NewTextHandler(&buf, nil))

	handler := env.handlers.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggerFromRequest := env.handlers.loggerFromContext(r.Context())
		loggerFromRequest.Info("inside handler")
		w.WriteHeader(http.StatusBadGateway)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(env.guestCookie(t, "8a6e0804-2bd0-4672-b79d-d97027f9071a"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	logs := buf.String()
	if !strings.Contains(logs, "guest_id=8a6e0804-2bd0-4672-b79d-d97027f9071a") {
		t.Fatalf("expected guest id in logs, got %q", logs)
	}
	if !strings.Contains(logs, "msg=\"inside handler\"") || !strings.Contains(logs, "level=ERROR msg=\"request failed\"") {
		t.Fatalf("expected scoped handler log and failure summary, got %q", logs)
	}
}
