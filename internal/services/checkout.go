package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/catalog"
	"github.com/norcalbattery/storefront/internal/db"
	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/models"
	"github.com/norcalbattery/storefront/internal/observability"
	"github.com/norcalbattery/storefront/internal/stripe"
)

var (
	ErrPaymentProcessor = errors.New("payment processor error")
	ErrCatalogItem      = errors.New("invalid cart item")
)

type paymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, req stripe.CheckoutRequest) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

type CheckoutService struct {
	orders    *OrderService
	catalog   *catalog.Catalog
	pricer    *catalog.Pricer
	processor paymentProcessor
	logger    *slog.Logger
}

func NewCheckoutService(orders *OrderService, products *catalog.Catalog, processor paymentProcessor, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		orders:    orders,
		catalog:   products,
		pricer:    catalog.NewPricer(),
		processor: processor,
		logger:    logger,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CheckoutInput struct {
	Lines          []catalog.CartLine
	UserID         string
	DeliveryMethod models.DeliveryMethod
	ShippingCost   *decimal.Decimal
	// Origin is the scheme and host the shopper returns to after paying.
	Origin string
}

type CheckoutResult struct {
	SessionID string
	URL       string
	Order     *models.Order
}

// CreateCheckoutSession prices the cart from the catalog, opens a Stripe Checkout session and
// records the pending order for it.
func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	span, ctx := startSpan(ctx, "service.checkout.create_session", "service.checkout", "CreateCheckoutSession")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		observability.CountReason(ctx, "checkout.session.failed", reason)
	}

	if strings.TrimSpace(input.UserID) == "" {
		recordFailure("missing_user")
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOrderInput)
	}
	origin := strings.TrimRight(strings.TrimSpace(input.Origin), "/")
	if origin == "" {
		recordFailure("missing_origin")
		return nil, fmt.Errorf("%w: origin is required", ErrInvalidOrderInput)
	}

	draft, err := s.draft(input.Lines, input.DeliveryMethod, input.ShippingCost)
	if err != nil {
		recordFailure("invalid_cart")
		return nil, err
	}

	lineItems := make([]stripe.LineItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		lineItems = append(lineItems, stripe.LineItem{
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
		})
	}

	session, err := s.processor.CreateCheckoutSession(ctx, stripe.CheckoutRequest{
		OrderID:      draft.OrderID,
		UserID:       input.UserID,
		Items:        lineItems,
		Delivery:     draft.DeliveryMethod == models.DeliveryShipping,
		ShippingCost: draft.ShippingCost,
		SuccessURL:   origin + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:    origin + "/cart",
	})
	if err != nil {
		recordFailure("processor")
		logger.Error("failed to create checkout session", "error", err, "order_id", draft.OrderID)
		return nil, fmt.Errorf("%w: %w", ErrPaymentProcessor, err)
	}
	if session == nil || session.ID == "" {
		recordFailure("processor")
		return nil, fmt.Errorf("%w: checkout session has no id", ErrPaymentProcessor)
	}
	if !session.AmountTotal.IsZero() && !session.AmountTotal.Equal(draft.Total) {
		logger.Warn("checkout session total differs from order total",
			"order_id", draft.OrderID,
			"session_id", session.ID,
			"session_total", session.AmountTotal.StringFixed(2),
			"order_total", draft.Total.StringFixed(2),
		)
	}

	shipping := draft.ShippingCost
	order, err := s.orders.CreateOrder(ctx, CreateOrderInput{
		Items:           draft.Items,
		UserID:          input.UserID,
		DeliveryMethod:  draft.DeliveryMethod,
		ShippingCost:    &shipping,
		StripeSessionID: session.ID,
		OrderID:         draft.OrderID,
		Status:          models.StatusPending,
	})
	if err != nil {
		recordFailure("persist")
		if expireErr := s.processor.ExpireCheckoutSession(ctx, session.ID); expireErr != nil {
			logger.Error("failed to expire checkout session after order persistence failure", "error", expireErr, "session_id", session.ID)
		}
		return nil, err
	}

	meter.Count("checkout.session.created", 1, sentry.WithAttributes(
		attribute.String("delivery_method", string(order.DeliveryMethod)),
	))
	logger.Info("checkout session created", "order_id", order.OrderID, "session_id", session.ID)
	span.Status = sentry.SpanStatusOK

	return &CheckoutResult{
		SessionID: session.ID,
		URL:       session.URL,
		Order:     order,
	}, nil
}

type VerifyResult struct {
	Confirmed bool
	Pending   bool
	Order     *models.Order
	// PaymentStatus is Stripe's view of the session, when it was consulted.
	PaymentStatus string
}

// VerifySession reports whether the order for a checkout session has been paid. It never changes the order.
func (s *CheckoutService) VerifySession(ctx context.Context, sessionID string) (*VerifyResult, error) {
	span, ctx := startSpan(ctx, "service.checkout.verify_session", "service.checkout", "VerifySession")
	defer span.Finish()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidOrderInput)
	}

	logger := s.loggerFromContext(ctx)
	result := &VerifyResult{}

	order, err := s.orders.GetOrderBySessionID(ctx, sessionID)
	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		result.Pending = true
	case err != nil:
		return nil, err
	default:
		result.Order = order
		result.Confirmed = order.Status.IsConfirmed()
		result.Pending = order.Status.IsUnconfirmed()
	}

	if !result.Confirmed && s.processor != nil {
		session, err := s.processor.GetCheckoutSession(ctx, sessionID)
		if err != nil {
			logger.Warn("failed to look up checkout session", "error", err, "session_id", sessionID)
		} else if session != nil {
			result.PaymentStatus = session.PaymentStatus
		}
	}

	span.Status = sentry.SpanStatusOK
	return result, nil
}

type Quote struct {
	Items          []models.OrderItem
	DeliveryMethod models.DeliveryMethod
	Subtotal       decimal.Decimal
	Shipping       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
}

// Quote prices a cart without creating anything. Tax is an estimate on top of the total.
func (s *CheckoutService) Quote(lines []catalog.CartLine, delivery models.DeliveryMethod) (*Quote, error) {
	draft, err := s.draft(lines, delivery, nil)
	if err != nil {
		return nil, err
	}

	order := &models.Order{Items: draft.Items, ShippingCost: draft.ShippingCost, Total: draft.Total}
	return &Quote{
		Items:          draft.Items,
		DeliveryMethod: draft.DeliveryMethod,
		Subtotal:       draft.Subtotal,
		Shipping:       draft.ShippingCost,
		Tax:            s.orders.CalculateTax(order),
		Total:          draft.Total,
	}, nil
}

func (s *CheckoutService) draft(lines []catalog.CartLine, delivery models.DeliveryMethod, shippingCost *decimal.Decimal) (OrderDraft, error) {
	if s.catalog == nil {
		return OrderDraft{}, fmt.Errorf("%w: catalog is not loaded", ErrCatalogItem)
	}
	items, err := s.pricer.Resolve(s.catalog, lines)
	if err != nil {
		return OrderDraft{}, fmt.Errorf("%w: %w", ErrCatalogItem, err)
	}
	return s.orders.PrepareOrder(items, delivery, shippingCost)
}

// Products lists what can currently be bought.
func (s *CheckoutService) Products() []catalog.Product {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.ActiveProducts()
}

func (s *CheckoutService) Catalog() *catalog.Catalog {
	return s.catalog
}
