package handlers

import (
	"net/http"
	"strings"

	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/models"
	"github.com/norcalbattery/storefront/internal/services"
)

type checkoutResponse struct {
	SessionID string         `json:"session_id"`
	URL       string         `json:"url"`
	Order     *orderResponse `json:"order"`
}

// CreateCheckoutSession opens a Stripe Checkout session for the caller's cart. Prices come from
// the catalog; the client only chooses products, quantities and the delivery method.
func (h *Handlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req cartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	guestID, created, err := h.guestIssuer.Ensure(w, r)
	if err != nil {
		h.loggerFromContext(ctx).Error("failed to issue guest id", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "internal error")
		return
	}
	if created {
		r = r.WithContext(logging.With(ctx, "guest_id", guestID))
		ctx = r.Context()
	}

	result, err := h.checkoutService.CreateCheckoutSession(ctx, services.CheckoutInput{
		Lines:          req.Items,
		UserID:         guestID,
		DeliveryMethod: models.DeliveryMethod(req.DeliveryMethod),
		Origin:         requestOrigin(r, h.config.BaseURL),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "create checkout session")
		return
	}

	writeJSON(ctx, w, http.StatusCreated, checkoutResponse{
		SessionID: result.SessionID,
		URL:       result.URL,
		Order:     newOrderResponse(result.Order),
	})
}

type verifyResponse struct {
	Confirmed     bool           `json:"confirmed"`
	Pending       bool           `json:"pending"`
	PaymentStatus string         `json:"payment_status,omitempty"`
	Order         *orderResponse `json:"order,omitempty"`
}

// VerifyCheckoutSession reports payment state for the success page. It never changes an order;
// an order the webhook has not written yet is reported as pending.
func (h *Handlers) VerifyCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(ctx, w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.checkoutService.VerifySession(ctx, sessionID)
	if err != nil {
		h.writeServiceError(w, r, err, "verify checkout session")
		return
	}

	writeJSON(ctx, w, http.StatusOK, verifyResponse{
		Confirmed:     result.Confirmed,
		Pending:       result.Pending,
		PaymentStatus: result.PaymentStatus,
		Order:         newOrderResponse(result.Order),
	})
}
