package handlers

import (
	"net/http"
	"time"

	"github.com/norcalbattery/storefront/internal/cache"
	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/observability"
	stripewebhook "github.com/norcalbattery/storefront/internal/stripe"
)

const (
	// stripeWebhookIdempotencyTTL covers Stripe's retry window for a delivered event.
	stripeWebhookIdempotencyTTL = 24 * time.Hour
	// stripeWebhookClaimTTL bounds how long an in-flight delivery blocks duplicates.
	stripeWebhookClaimTTL = 2 * time.Minute

	webhookStateProcessing = "processing"
	webhookStateProcessed  = "processed"
)

type webhookAck struct {
	Received bool `json:"received"`
}

// StripeWebhook acknowledges every event whose signature verifies. Processing failures are logged
// and left for reconciliation so Stripe does not keep retrying a delivery that cannot succeed.
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := stripewebhook.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		logger.Error("failed to read Stripe webhook payload", "error", err)
		observability.CountReason(ctx, "webhook.rejected", stripewebhook.WebhookRejectReason(err))
		writeError(ctx, w, http.StatusBadRequest, "invalid webhook")
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		writeError(ctx, w, http.StatusBadRequest, "missing event id")
		return
	}
	ctx = logging.With(ctx, "event_id", event.ID, "event_type", event.Type)
	logger = h.loggerFromContext(ctx)

	cacheKey := cache.WebhookKey("stripe", event.ID)
	claimed, err := h.cacheProvider.Claim(ctx, cacheKey, webhookStateProcessing, stripeWebhookClaimTTL)
	switch {
	case err != nil:
		// Order transitions are idempotent; a duplicate run is safe.
		logger.Warn("failed to claim webhook; processing without deduplication", "error", err)
	case !claimed:
		logger.Info("webhook already processed or in flight")
		meter.Count("webhook.duplicate", 1)
		writeJSON(ctx, w, http.StatusOK, webhookAck{Received: true})
		return
	}

	if processErr := h.stripeRouter.Handle(ctx, event); processErr != nil {
		logger.Error("failed to process Stripe webhook", "error", processErr, "session_id", eventObjectID(event.Data))
		if err := h.cacheProvider.Delete(ctx, cacheKey); err != nil {
			logger.Error("failed to release webhook claim", "error", err)
		}
	} else if err := h.cacheProvider.Set(ctx, cacheKey, webhookStateProcessed, stripeWebhookIdempotencyTTL); err != nil {
		logger.Error("failed to mark webhook as processed in cache", "error", err)
	}

	writeJSON(ctx, w, http.StatusOK, webhookAck{Received: true})
}
