package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/norcalbattery/storefront/internal/db"
	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/models"
	"github.com/norcalbattery/storefront/internal/observability"
)

// remoteShippingStates are destinations the flat delivery rate does not cover.
var remoteShippingStates = map[string]bool{
	"AK": true,
	"HI": true,
}

type StripeService struct {
	orders      *OrderService
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewStripeService(orders *OrderService, emailSender OrderEmailSender, logger *slog.Logger) *StripeService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &StripeService{
		orders:      orders,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *StripeService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// checkoutSessionPayload carries the shipping fields that live outside stripe's typed session.
type checkoutSessionPayload struct {
	stripeapi.CheckoutSession
	ShippingDetails *stripeapi.ShippingDetails
}

type shippingFields struct {
	ShippingDetails      *stripeapi.ShippingDetails `json:"shipping_details"`
	CollectedInformation *struct {
		ShippingDetails *stripeapi.ShippingDetails `json:"shipping_details"`
	} `json:"collected_information"`
}

func decodeCheckoutSession(payload []byte) (*checkoutSessionPayload, error) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(payload, &session.CheckoutSession); err != nil {
		return nil, fmt.Errorf("invalid event object: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("missing session ID")
	}

	var shipping shippingFields
	if err := json.Unmarshal(payload, &shipping); err != nil {
		return nil, fmt.Errorf("invalid shipping details: %w", err)
	}
	session.ShippingDetails = shipping.ShippingDetails
	if shipping.CollectedInformation != nil && shipping.CollectedInformation.ShippingDetails != nil {
		session.ShippingDetails = shipping.CollectedInformation.ShippingDetails
	}
	return &session, nil
}

// HandleCheckoutSessionCompleted marks the session's order paid, then records the customer email
// and shipping address and sends the confirmation. Each follow-up step fails on its own.
func (s *StripeService) HandleCheckoutSessionCompleted(ctx context.Context, payload []byte) error {
	span, ctx := startSpan(ctx, "service.stripe.checkout_completed", "service.stripe", "HandleCheckoutSessionCompleted")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	session, err := decodeCheckoutSession(payload)
	if err != nil {
		return err
	}
	logger = logger.With("session_id", session.ID)

	if session.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusUnpaid {
		logger.Info("checkout completed without payment, waiting for async payment", "order_id", session.Metadata["order_id"])
		meter.Count("stripe.checkout.awaiting_payment", 1)
		return nil
	}

	order, newlyPaid, err := s.orders.reconcilePayment(ctx, session.ID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			logger.Warn("completed session has no order", "order_id", session.Metadata["order_id"])
			meter.Count("stripe.checkout.orphaned", 1)
			return nil
		}
		return fmt.Errorf("failed to mark order as paid: %w", err)
	}
	logger = logger.With("order_id", order.OrderID)
	meter.Count("stripe.checkout.completed", 1, sentry.WithAttributes(
		attribute.Bool("newly_paid", newlyPaid),
	))

	customerEmail := extractCustomerEmail(session)
	if customerEmail != "" && customerEmail != order.CustomerEmail {
		updated, err := s.orders.UpdateCustomerEmail(ctx, order.PrivateID, customerEmail)
		if err != nil {
			logger.Error("failed to attach customer email", "error", err)
		} else {
			order = updated
		}
	}

	if address := buildShippingAddress(session.ShippingDetails); address != nil && order.DeliveryMethod == models.DeliveryShipping {
		if remoteShippingStates[strings.ToUpper(address.State)] {
			logger.Warn("order ships outside the contiguous US, shipping rate needs review", "state", address.State)
			meter.Count("stripe.checkout.remote_destination", 1)
		}
		updated, err := s.orders.UpdateShippingAddress(ctx, order.PrivateID, *address)
		if err != nil {
			logger.Error("failed to attach shipping address", "error", err)
		} else {
			order = updated
		}
	}

	if !newlyPaid {
		logger.Info("order was already confirmed, skipping confirmation email", "status", order.Status)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	if err := s.emailSender.SendOrderConfirmation(ctx, order); err != nil {
		logger.Error("failed to send order confirmation email", "error", err)
		meter.Count("email.confirmation.failed", 1)
	}

	logger.Info("checkout session completed handled", "status", order.Status)
	span.Status = sentry.SpanStatusOK
	return nil
}

// HandleCheckoutSessionExpired cancels the order of an abandoned session. Paid orders are left alone.
func (s *StripeService) HandleCheckoutSessionExpired(ctx context.Context, payload []byte) error {
	span, ctx := startSpan(ctx, "service.stripe.checkout_expired", "service.stripe", "HandleCheckoutSessionExpired")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)

	session, err := decodeCheckoutSession(payload)
	if err != nil {
		return err
	}

	order, err := s.orders.CancelUnconfirmed(ctx, session.ID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			logger.Warn("expired session has no order", "session_id", session.ID, "order_id", session.Metadata["order_id"])
			return nil
		}
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	observability.MeterFromContext(ctx).Count("stripe.checkout.expired", 1, sentry.WithAttributes(
		attribute.String("status", string(order.Status)),
	))
	logger.Info("checkout session expired handled", "session_id", session.ID, "order_id", order.OrderID, "status", order.Status)
	span.Status = sentry.SpanStatusOK
	return nil
}

func extractCustomerEmail(session *checkoutSessionPayload) string {
	if session == nil {
		return ""
	}

	customerEmail := ""
	if session.CustomerDetails != nil {
		customerEmail = session.CustomerDetails.Email
	}
	if customerEmail == "" {
		customerEmail = session.CustomerEmail
	}
	return strings.TrimSpace(customerEmail)
}

// buildShippingAddress reads the collected shipping destination. The customer's billing address
// is never used as a fallback.
func buildShippingAddress(details *stripeapi.ShippingDetails) *models.ShippingAddress {
	if details == nil || details.Address == nil {
		return nil
	}
	address := details.Address

	return &models.ShippingAddress{
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Country:    address.Country,
	}
}
