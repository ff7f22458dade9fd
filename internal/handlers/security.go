package handlers

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/norcalbattery/storefront/internal/observability"
)

const hstsMaxAge = "max-age=63072000; includeSubDomains"

// SecurityHeaders sets baseline headers for JSON responses. Order data is never cached.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	secure := h.isSecure()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cross-Origin-Opener-Policy", "same-origin")
		headers.Set("Cross-Origin-Resource-Policy", "same-origin")
		headers.Set("Cache-Control", "no-store")
		if secure {
			headers.Set("Strict-Transport-Security", hstsMaxAge)
		}

		next.ServeHTTP(w, r)
	})
}

// RequireSameOrigin blocks cross-origin state-changing requests. Browsers send Origin on
// fetch POSTs; Referer is the fallback for older clients.
func (h *Handlers) RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !requestMutatesState(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		observability.MeterFromContext(ctx).Count("security.same_origin.checked", 1)

		if reason, err := h.crossOriginReason(r); reason != "" {
			observability.CountReason(ctx, "security.same_origin.blocked", reason)
			h.loggerFromContext(ctx).Warn("blocked cross-origin request",
				"reason", reason,
				"origin", r.Header.Get("Origin"),
				"referer", r.Header.Get("Referer"),
				"error", err,
			)
			writeError(ctx, w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// crossOriginReason returns an empty reason when the request comes from an allowed host.
func (h *Handlers) crossOriginReason(r *http.Request) (string, error) {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	referer := strings.TrimSpace(r.Header.Get("Referer"))

	switch {
	case origin == "" && referer == "":
		return "missing_origin_and_referer", nil
	case origin != "":
		if ok, err := h.headerMatchesAllowedHost(origin, r); err != nil || !ok {
			return "invalid_origin", err
		}
	}
	if referer != "" {
		if ok, err := h.headerMatchesAllowedHost(referer, r); err != nil || !ok {
			return "invalid_referer", err
		}
	}
	return "", nil
}

func requestMutatesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// headerMatchesAllowedHost compares the host in an Origin or Referer value with the request host
// and the configured base URL.
func (h *Handlers) headerMatchesAllowedHost(value string, r *http.Request) (bool, error) {
	parsed, err := url.Parse(value)
	if err != nil {
		return false, fmt.Errorf("failed to parse URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false, fmt.Errorf("missing host in %q", value)
	}

	if host == normalizeHost(r.Host) {
		return true, nil
	}
	if h.config != nil && host == baseURLHost(h.config.BaseURL) {
		return true, nil
	}
	return false, nil
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		hostport = host
	}
	return strings.ToLower(strings.TrimSpace(hostport))
}

func baseURLHost(rawURL string) string {
	if rawURL = strings.TrimSpace(rawURL); rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
