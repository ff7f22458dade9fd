// Package observability wires Sentry tracing and metrics into outbound calls and request contexts.
package observability

import (
	"net/http"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// Outbound hosts that receive trace propagation headers: Stripe checkout,
// the GitHub OAuth exchange and user lookup, and Resend delivery.
var tracePropagationTargets = []string{
	"api.stripe.com",
	"github.com",
	"api.github.com",
	"api.resend.com",
}

func WrapRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return sentryhttpclient.NewSentryRoundTripper(
		base,
		sentryhttpclient.WithTracePropagationTargets(tracePropagationTargets),
	)
}

// NewHTTPClient returns a traced client. A zero timeout leaves requests unbounded.
func NewHTTPClient(timeout time.Duration) *http.Client {
	client := &http.Client{
		Transport: WrapRoundTripper(http.DefaultTransport),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}
