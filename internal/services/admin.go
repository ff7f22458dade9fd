package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/models"
	"github.com/norcalbattery/storefront/internal/observability"
)

var (
	ErrAdminStatusNotAllowed    = errors.New("status cannot be set by an admin")
	ErrAdminOrderStatusConflict = errors.New("order status conflict")
)

const defaultAdminOrderLimit = 50

type AdminService struct {
	orders       *OrderService
	orderEmailer OrderEmailSender
	logger       *slog.Logger
}

func NewAdminService(orders *OrderService, orderEmailer OrderEmailSender, logger *slog.Logger) *AdminService {
	if orderEmailer == nil {
		orderEmailer = noopOrderEmailSender{}
	}

	return &AdminService{
		orders:       orders,
		orderEmailer: orderEmailer,
		logger:       logger,
	}
}

func (s *AdminService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *AdminService) GetRecentOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = defaultAdminOrderLimit
	}
	return s.orders.ListOrders(ctx, limit)
}

func (s *AdminService) GetOrder(ctx context.Context, privateID uuid.UUID) (*models.Order, error) {
	return s.orders.GetOrder(ctx, privateID)
}

func (s *AdminService) DeleteOrder(ctx context.Context, privateID uuid.UUID) (bool, error) {
	deleted, err := s.orders.DeleteOrder(ctx, privateID)
	if err != nil {
		return false, err
	}
	s.loggerFromContext(ctx).Info("admin deleted order", "private_id", privateID, "deleted", deleted)
	return deleted, nil
}

// UpdateStatus moves an order into fulfillment. Payment states are owned by the Stripe webhook,
// so only shipped and delivered are accepted here.
func (s *AdminService) UpdateStatus(ctx context.Context, privateID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	return s.updateStatus(ctx, privateID, status, nil)
}

// ShipOrder marks an order shipped and records its tracking details before the customer is emailed.
// Calling it again on a shipped order replaces the tracking details without another email.
func (s *AdminService) ShipOrder(ctx context.Context, privateID uuid.UUID, shipment *models.Shipment) (*models.Order, error) {
	return s.updateStatus(ctx, privateID, models.StatusShipped, shipment)
}

func (s *AdminService) updateStatus(ctx context.Context, privateID uuid.UUID, status models.OrderStatus, shipment *models.Shipment) (*models.Order, error) {
	span, ctx := startSpan(ctx, "service.admin.update_status", "service.admin", "UpdateStatus")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.Count("fulfillment.status.received", 1)
	recordFailed := func(reason string) {
		observability.CountReason(ctx, "fulfillment.status.failed", reason)
	}

	if status != models.StatusShipped && status != models.StatusDelivered {
		recordFailed("status_not_allowed")
		return nil, fmt.Errorf("%w: %q", ErrAdminStatusNotAllowed, status)
	}

	order, before, err := s.orders.FulfillOrder(ctx, privateID, status, shipment)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidStatusTransition):
			recordFailed("invalid_status_transition")
			return nil, fmt.Errorf("%w: %w", ErrAdminOrderStatusConflict, err)
		case before == "":
			recordFailed("order_lookup_failed")
		default:
			recordFailed("update_failed")
		}
		return nil, err
	}

	if before == order.Status {
		return order, nil
	}

	var emailErr error
	switch order.Status {
	case models.StatusShipped:
		emailErr = s.orderEmailer.SendOrderShipped(ctx, order)
	case models.StatusDelivered:
		emailErr = s.orderEmailer.SendOrderDelivered(ctx, order)
	}
	if emailErr != nil {
		observability.CountReason(ctx, "fulfillment.status.side_effect_failed", "status_email_failed")
		logger.Error("failed to send status email", "error", emailErr, "order_id", order.OrderID, "status", order.Status)
	}

	meter.Count("fulfillment.status.processed", 1, sentry.WithAttributes(
		attribute.String("status", string(order.Status)),
	))
	span.Status = sentry.SpanStatusOK
	return order, nil
}
