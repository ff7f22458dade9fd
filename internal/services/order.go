package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/catalog"
	"github.com/norcalbattery/storefront/internal/db"
	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/models"
	"github.com/norcalbattery/storefront/internal/observability"
)

var ErrInvalidOrderInput = errors.New("invalid order input")

var DefaultTaxRate = decimal.RequireFromString("0.10")

type shippingEstimator interface {
	EstimateShipping(catalog *catalog.Catalog, subtotal decimal.Decimal) decimal.Decimal
}

type OrderService struct {
	store   db.OrderStore
	catalog *catalog.Catalog
	pricer  shippingEstimator
	taxRate decimal.Decimal
	logger  *slog.Logger
	events  *slog.Logger
}

type OrderServiceOptions struct {
	Catalog *catalog.Catalog
	// TaxRate defaults to DefaultTaxRate when nil. An explicit zero disables tax.
	TaxRate *decimal.Decimal
	// EventLogger receives one record per lifecycle change. Defaults to Logger.
	EventLogger *slog.Logger
	Logger      *slog.Logger
}

func NewOrderService(store db.OrderStore, opts OrderServiceOptions) *OrderService {
	taxRate := DefaultTaxRate
	if opts.TaxRate != nil {
		taxRate = *opts.TaxRate
	}
	events := opts.EventLogger
	if events == nil {
		events = opts.Logger
	}

	return &OrderService{
		store:   store,
		catalog: opts.Catalog,
		pricer:  catalog.NewPricer(),
		taxRate: taxRate,
		logger:  opts.Logger,
		events:  logging.FromContext(context.Background(), events),
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func startSpan(ctx context.Context, operation, opName, description string) (*sentry.Span, context.Context) {
	span := sentry.StartSpan(
		ctx,
		operation,
		sentry.WithOpName(opName),
		sentry.WithDescription(description),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	return span, span.Context()
}

// OrderDraft is a priced order that has not been persisted yet.
type OrderDraft struct {
	OrderID        string
	Items          []models.OrderItem
	DeliveryMethod models.DeliveryMethod
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
}

type CreateOrderInput struct {
	Items          []models.OrderItem
	UserID         string
	DeliveryMethod models.DeliveryMethod
	// ShippingCost is estimated from the subtotal when nil and the order is delivered.
	ShippingCost    *decimal.Decimal
	StripeSessionID string
	OrderID         string
	Status          models.OrderStatus
}

// PrepareOrder validates items and computes the totals of a new order. It has no side effects.
func (s *OrderService) PrepareOrder(items []models.OrderItem, delivery models.DeliveryMethod, shippingCost *decimal.Decimal) (OrderDraft, error) {
	if err := validateItems(items); err != nil {
		return OrderDraft{}, err
	}

	method, err := models.ParseDeliveryMethod(string(delivery))
	if err != nil {
		return OrderDraft{}, fmt.Errorf("%w: %v", ErrInvalidOrderInput, err)
	}

	subtotal := models.Subtotal(items)
	shipping := decimal.Zero
	if method == models.DeliveryShipping {
		if shippingCost != nil {
			if shippingCost.IsNegative() {
				return OrderDraft{}, fmt.Errorf("%w: shipping cost must not be negative", ErrInvalidOrderInput)
			}
			shipping = shippingCost.Round(2)
		} else {
			shipping = s.EstimateShipping(subtotal)
		}
	}

	copied := make([]models.OrderItem, len(items))
	copy(copied, items)

	return OrderDraft{
		OrderID:        models.NewOrderID(),
		Items:          copied,
		DeliveryMethod: method,
		Subtotal:       subtotal,
		ShippingCost:   shipping,
		Total:          subtotal.Add(shipping),
	}, nil
}

func validateItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrderInput)
	}
	for i, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: item %d has no name", ErrInvalidOrderInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %q has quantity %d", ErrInvalidOrderInput, item.Name, item.Quantity)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: item %q has a negative price", ErrInvalidOrderInput, item.Name)
		}
	}
	return nil
}

// CreateOrder persists a new order for a checkout session.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	span, ctx := startSpan(ctx, "service.order.create", "service.order", "CreateOrder")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		observability.CountReason(ctx, "order.create.failed", reason)
	}

	sessionID := strings.TrimSpace(input.StripeSessionID)
	if sessionID == "" {
		recordFailure("missing_session")
		return nil, fmt.Errorf("%w: stripe session id is required", ErrInvalidOrderInput)
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		recordFailure("missing_user")
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOrderInput)
	}

	status := input.Status
	if status == "" {
		status = models.StatusPending
	}
	if !status.IsUnconfirmed() {
		recordFailure("invalid_status")
		return nil, fmt.Errorf("%w: new orders start as cart or pending, got %q", ErrInvalidOrderInput, status)
	}

	draft, err := s.PrepareOrder(input.Items, input.DeliveryMethod, input.ShippingCost)
	if err != nil {
		recordFailure("invalid_items")
		return nil, err
	}
	if input.OrderID != "" {
		draft.OrderID = input.OrderID
	}

	created, err := s.store.Create(ctx, &models.Order{
		OrderID:         draft.OrderID,
		UserID:          userID,
		StripeSessionID: sessionID,
		Items:           draft.Items,
		DeliveryMethod:  draft.DeliveryMethod,
		ShippingCost:    draft.ShippingCost,
		Total:           draft.Total,
		Status:          status,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicateSession) {
			recordFailure("duplicate_session")
			logger.Warn("order already exists for session", "session_id", sessionID, "order_id", draft.OrderID)
			return nil, err
		}
		recordFailure("store_error")
		logger.Error("failed to create order", "error", err, "session_id", sessionID, "order_id", draft.OrderID, "user_id", userID)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	meter.Count("order.created", 1, sentry.WithAttributes(
		attribute.String("delivery_method", string(created.DeliveryMethod)),
	))
	s.events.Info("order created",
		"order_id", created.OrderID,
		"private_id", created.PrivateID,
		"session_id", created.StripeSessionID,
		"user_id", created.UserID,
		"total", created.Total.StringFixed(2),
		"status", created.Status,
	)
	return created, nil
}

// UpdateOrderStatus moves an order along the status state machine.
// Requesting the current status returns the stored order without writing.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, privateID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	span, ctx := startSpan(ctx, "service.order.update_status", "service.order", "UpdateOrderStatus")
	defer span.Finish()

	order, err := s.store.FindByID(ctx, privateID)
	if err != nil {
		return nil, s.storeError(ctx, "find order", err, "private_id", privateID)
	}
	return s.transition(ctx, order, status, nil)
}

// transition writes status, together with shipment when one is given, in a single update.
func (s *OrderService) transition(ctx context.Context, order *models.Order, status models.OrderStatus, shipment *models.Shipment) (*models.Order, error) {
	if order.Status == status && shipment == nil {
		return order, nil
	}
	if order.Status != status && !models.CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: %s to %s", models.ErrInvalidStatusTransition, order.Status, status)
	}

	patch := models.OrderPatch{Shipment: shipment}
	if order.Status != status {
		patch.Status = &status
	}
	updated, err := s.store.Update(ctx, order.PrivateID, patch)
	if err != nil {
		return nil, s.storeError(ctx, "update order status", err, "order_id", order.OrderID, "status", status)
	}

	if shipment != nil {
		s.events.Info("order shipment recorded",
			"order_id", updated.OrderID,
			"carrier", shipment.Carrier,
			"tracking_number", shipment.TrackingNumber,
		)
	}
	if order.Status == status {
		return updated, nil
	}

	observability.MeterFromContext(ctx).Count("order.status.changed", 1, sentry.WithAttributes(
		attribute.String("from", string(order.Status)),
		attribute.String("to", string(status)),
	))
	s.events.Info("order status updated",
		"order_id", updated.OrderID,
		"session_id", updated.StripeSessionID,
		"from", order.Status,
		"to", updated.Status,
	)
	return updated, nil
}

// UpdateShippingAddress replaces the destination of an order. Incomplete addresses are rejected before any write.
func (s *OrderService) UpdateShippingAddress(ctx context.Context, privateID uuid.UUID, address models.ShippingAddress) (*models.Order, error) {
	span, ctx := startSpan(ctx, "service.order.update_shipping_address", "service.order", "UpdateShippingAddress")
	defer span.Finish()

	normalized := address.Normalized()
	if err := normalized.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrderInput, err)
	}

	updated, err := s.store.Update(ctx, privateID, models.OrderPatch{ShippingAddress: &normalized})
	if err != nil {
		return nil, s.storeError(ctx, "update shipping address", err, "private_id", privateID)
	}

	s.events.Info("order shipping address updated",
		"order_id", updated.OrderID,
		"state", normalized.State,
		"country", normalized.Country,
	)
	return updated, nil
}

// FulfillOrder moves an order to status and records shipment in the same write, so an order is
// never shipped without the tracking details it was shipped with. A nil shipment leaves tracking
// untouched. It returns the status the order had before the call.
func (s *OrderService) FulfillOrder(ctx context.Context, privateID uuid.UUID, status models.OrderStatus, shipment *models.Shipment) (*models.Order, models.OrderStatus, error) {
	span, ctx := startSpan(ctx, "service.order.fulfill", "service.order", "FulfillOrder")
	defer span.Finish()

	order, err := s.store.FindByID(ctx, privateID)
	if err != nil {
		return nil, "", s.storeError(ctx, "find order", err, "private_id", privateID)
	}
	updated, err := s.transition(ctx, order, status, shipment)
	if err != nil {
		return nil, order.Status, err
	}
	return updated, order.Status, nil
}

// UpdateCustomerEmail records the email the payment processor collected.
func (s *OrderService) UpdateCustomerEmail(ctx context.Context, privateID uuid.UUID, email string) (*models.Order, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidOrderInput)
	}

	updated, err := s.store.Update(ctx, privateID, models.OrderPatch{CustomerEmail: &email})
	if err != nil {
		return nil, s.storeError(ctx, "update customer email", err, "private_id", privateID)
	}
	return updated, nil
}

// ReconcileAfterPaymentReturn marks the order for a completed checkout session as paid.
// Orders that are already paid or further along are returned unchanged.
func (s *OrderService) ReconcileAfterPaymentReturn(ctx context.Context, sessionID string) (*models.Order, error) {
	order, _, err := s.reconcilePayment(ctx, sessionID)
	return order, err
}

// reconcilePayment reports whether this call moved the order into paid.
func (s *OrderService) reconcilePayment(ctx context.Context, sessionID string) (*models.Order, bool, error) {
	span, ctx := startSpan(ctx, "service.order.reconcile_payment", "service.order", "ReconcileAfterPaymentReturn")
	defer span.Finish()

	order, err := s.store.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		return nil, false, s.storeError(ctx, "find order by session", err, "session_id", sessionID)
	}

	if !order.Status.IsUnconfirmed() {
		s.loggerFromContext(ctx).Info("order already confirmed", "order_id", order.OrderID, "session_id", sessionID, "status", order.Status)
		return order, false, nil
	}
	paid, err := s.transition(ctx, order, models.StatusPaid, nil)
	if err != nil {
		return nil, false, err
	}
	return paid, true, nil
}

// CancelUnconfirmed cancels the order for an abandoned checkout session.
// Orders whose payment was already confirmed are returned unchanged.
func (s *OrderService) CancelUnconfirmed(ctx context.Context, sessionID string) (*models.Order, error) {
	span, ctx := startSpan(ctx, "service.order.cancel_unconfirmed", "service.order", "CancelUnconfirmed")
	defer span.Finish()

	order, err := s.store.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		return nil, s.storeError(ctx, "find order by session", err, "session_id", sessionID)
	}

	if !order.Status.IsUnconfirmed() {
		s.loggerFromContext(ctx).Info("ignoring cancellation of confirmed order", "order_id", order.OrderID, "session_id", sessionID, "status", order.Status)
		return order, nil
	}
	return s.transition(ctx, order, models.StatusCancelled, nil)
}

// GetOrdersForUser lists a user's orders newest first, leaving out carts and unpaid checkouts.
func (s *OrderService) GetOrdersForUser(ctx context.Context, userID string) ([]*models.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOrderInput)
	}

	orders, err := s.store.FindByUserID(ctx, userID, true)
	if err != nil {
		return nil, s.storeError(ctx, "find orders by user", err, "user_id", userID)
	}

	visible := make([]*models.Order, 0, len(orders))
	for _, order := range orders {
		if order.Status.IsUnconfirmed() {
			continue
		}
		visible = append(visible, order)
	}
	return visible, nil
}

func (s *OrderService) GetOrder(ctx context.Context, privateID uuid.UUID) (*models.Order, error) {
	order, err := s.store.FindByID(ctx, privateID)
	if err != nil {
		return nil, s.storeError(ctx, "find order", err, "private_id", privateID)
	}
	return order, nil
}

func (s *OrderService) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := s.store.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		return nil, s.storeError(ctx, "find order by session", err, "session_id", sessionID)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	orders, err := s.store.FindAll(ctx, limit)
	if err != nil {
		return nil, s.storeError(ctx, "list orders", err, "limit", limit)
	}
	return orders, nil
}

// DeleteOrder removes an order. Deleting a missing order reports false without error.
func (s *OrderService) DeleteOrder(ctx context.Context, privateID uuid.UUID) (bool, error) {
	deleted, err := s.store.Delete(ctx, privateID)
	if err != nil {
		return false, s.storeError(ctx, "delete order", err, "private_id", privateID)
	}
	if deleted {
		s.events.Info("order deleted", "private_id", privateID)
	}
	return deleted, nil
}

// CalculateTax returns the informational tax on an order's total, rounded to cents.
func (s *OrderService) CalculateTax(order *models.Order) decimal.Decimal {
	if order == nil {
		return decimal.Zero
	}
	return order.Total.Mul(s.taxRate).Round(2)
}

func (s *OrderService) TaxRate() decimal.Decimal {
	return s.taxRate
}

// EstimateShipping quotes delivery for a subtotal using the store's shipping rate.
func (s *OrderService) EstimateShipping(subtotal decimal.Decimal) decimal.Decimal {
	return s.pricer.EstimateShipping(s.catalog, subtotal)
}

// storeError logs a store failure and wraps it. Not-found passes through without error logging.
func (s *OrderService) storeError(ctx context.Context, op string, err error, attrs ...any) error {
	if errors.Is(err, db.ErrOrderNotFound) {
		s.loggerFromContext(ctx).Debug(op+": order not found", attrs...)
		return err
	}
	s.loggerFromContext(ctx).Error("failed to "+op, append([]any{"error", err}, attrs...)...)
	return fmt.Errorf("failed to %s: %w", op, err)
}
