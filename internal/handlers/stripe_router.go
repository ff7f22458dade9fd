package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/observability"
)

// checkoutEventService handles the checkout session events the storefront cares about.
type checkoutEventService interface {
	HandleCheckoutSessionCompleted(ctx context.Context, payload []byte) error
	HandleCheckoutSessionExpired(ctx context.Context, payload []byte) error
}

type StripeEventRouter struct {
	service checkoutEventService
	logger  *slog.Logger
}

func NewStripeEventRouter(service checkoutEventService, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		service: service,
		logger:  logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)

	if event == nil || event.Data == nil {
		observability.CountReason(ctx, "webhook.router.failed", "missing_event")
		return fmt.Errorf("missing stripe event or event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	handle, reason := r.handlerFor(event.Type)
	if handle == nil {
		logging.FromContext(ctx, r.logger).Info("unhandled Stripe event type", "type", event.Type)
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}
	if err := handle(ctx, event.Data.Raw); err != nil {
		observability.CountReason(ctx, "webhook.router.failed", reason)
		return err
	}

	meter.Count("webhook.router.processed", 1)
	span.Status = sentry.SpanStatusOK
	return nil
}

// handlerFor maps a checkout event onto the service method that applies it. Async payment
// outcomes are treated like their synchronous counterparts.
func (r *StripeEventRouter) handlerFor(eventType stripeapi.EventType) (func(context.Context, []byte) error, string) {
	switch eventType {
	case stripeapi.EventTypeCheckoutSessionCompleted, stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return r.service.HandleCheckoutSessionCompleted, "checkout_session_completed_failed"
	case stripeapi.EventTypeCheckoutSessionExpired, stripeapi.EventTypeCheckoutSessionAsyncPaymentFailed:
		return r.service.HandleCheckoutSessionExpired, "checkout_session_expired_failed"
	default:
		return nil, ""
	}
}

// eventObjectID returns the id of the object an event describes, for log correlation.
func eventObjectID(data *stripeapi.EventData) string {
	if data == nil || data.Object == nil {
		return ""
	}
	id, _ := data.Object["id"].(string)
	return id
}
