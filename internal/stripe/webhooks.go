package stripe

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const SignatureHeader = "Stripe-Signature"

var (
	ErrMissingSignature = errors.New("missing stripe signature header")
	ErrInvalidSignature = errors.New("invalid stripe signature")
)

// ReadWebhookEvent verifies the signature over the raw request body and decodes the event.
// Events pinned to an older API version are accepted; only the session id and type are read.
func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return nil, ErrMissingSignature
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}

	return VerifyWebhookPayload(payload, signature, secret)
}

// VerifyWebhookPayload checks a signed payload within Stripe's default timestamp tolerance.
func VerifyWebhookPayload(payload []byte, signature, secret string) (*stripeapi.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return &event, nil
}

// WebhookRejectReason names a verification failure for metrics.
func WebhookRejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingSignature):
		return "missing_signature"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "unreadable_body"
	}
}
