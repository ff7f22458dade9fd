package handlers

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/norcalbattery/storefront/internal/observability"
	"github.com/norcalbattery/storefront/internal/session"
)

// MetricsContext adds a request-scoped, pre-attributed meter to the context.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestIDFromRequest(r)

		attrs := []attribute.Builder{
			attribute.String("http.request_id", requestID),
			attribute.String("http.method", r.Method),
			attribute.String("network.client.ip", h.clientIP(r)),
		}
		if route := routeLabel(r); route != "" {
			attrs = append(attrs, attribute.String("http.route", route))
		}
		if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
			attrs = append(attrs, attribute.String("http.user_agent", userAgent))
		}
		if r.ContentLength >= 0 {
			attrs = append(attrs, attribute.Int64("http.request_content_length", r.ContentLength))
		}

		if sess := session.GetSessionFromContext(ctx); sess != nil {
			if sess.GitHubUserID > 0 {
				attrs = append(attrs, attribute.Int64("user.id", sess.GitHubUserID))
			}
			if login := strings.TrimSpace(sess.GitHubLogin); login != "" {
				attrs = append(attrs, attribute.String("user.username", login))
			}
		} else if h.guestIssuer != nil {
			if guestID, err := h.guestIssuer.FromRequest(r); err == nil {
				attrs = append(attrs, attribute.String("guest.id", guestID))
			}
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)

		ctx = observability.WithMeter(ctx, meter)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
