// Package stripe wraps Stripe Checkout sessions and webhook verification.
package stripe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

// Client creates and inspects Checkout sessions for the store's own Stripe account.
type Client struct {
	client   *stripe.Client
	currency string
}

// NewClient creates a Checkout client. A nil httpClient uses Stripe's default transport.
func NewClient(secretKey, currency string, httpClient *http.Client) *Client {
	if currency == "" {
		currency = "usd"
	}

	var opts []stripe.ClientOption
	if httpClient != nil {
		opts = append(opts, stripe.WithBackends(stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			HTTPClient: httpClient,
		})))
	}

	return &Client{
		client:   stripe.NewClient(secretKey, opts...),
		currency: currency,
	}
}

type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CheckoutRequest holds parameters for creating a checkout session.
type CheckoutRequest struct {
	OrderID      string
	UserID       string
	Items        []LineItem
	Delivery     bool
	ShippingCost decimal.Decimal
	SuccessURL   string
	CancelURL    string
}

type CheckoutSession struct {
	ID            string
	URL           string
	Status        string
	PaymentStatus string
	AmountTotal   decimal.Decimal
}

// CreateCheckoutSession creates a hosted payment page for an order.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	params, err := c.buildCheckoutParams(req)
	if err != nil {
		return nil, err
	}

	sess, err := c.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return toCheckoutSession(sess), nil
}

// GetCheckoutSession retrieves the current state of a checkout session.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	sess, err := c.client.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	return toCheckoutSession(sess), nil
}

// ExpireCheckoutSession closes an open checkout session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	if ctx == nil {
		return fmt.Errorf("context is required")
	}

	if _, err := c.client.V1CheckoutSessions.Expire(ctx, sessionID, &stripe.CheckoutSessionExpireParams{}); err != nil {
		return fmt.Errorf("failed to expire checkout session: %w", err)
	}
	return nil
}

func (c *Client) buildCheckoutParams(req CheckoutRequest) (*stripe.CheckoutSessionCreateParams, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("at least one line item is required")
	}

	lineItems := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		unitAmount, err := ToMinorUnits(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line item %q: %w", item.Name, err)
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(c.currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(unitAmount),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems:          lineItems,
		ClientReferenceID:  stripe.String(req.OrderID),
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"user_id":  req.UserID,
		},
	}

	if req.Delivery {
		shippingAmount, err := ToMinorUnits(req.ShippingCost)
		if err != nil {
			return nil, fmt.Errorf("shipping: %w", err)
		}
		params.ShippingOptions = []*stripe.CheckoutSessionCreateShippingOptionParams{
			{
				ShippingRateData: &stripe.CheckoutSessionCreateShippingOptionShippingRateDataParams{
					DisplayName: stripe.String("Delivery"),
					Type:        stripe.String(string(stripe.ShippingRateTypeFixedAmount)),
					FixedAmount: &stripe.CheckoutSessionCreateShippingOptionShippingRateDataFixedAmountParams{
						Amount:   stripe.Int64(shippingAmount),
						Currency: stripe.String(c.currency),
					},
				},
			},
		}
		params.ShippingAddressCollection = &stripe.CheckoutSessionCreateShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"US"}),
		}
	}

	return params, nil
}

func toCheckoutSession(sess *stripe.CheckoutSession) *CheckoutSession {
	if sess == nil {
		return nil
	}
	return &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   FromMinorUnits(sess.AmountTotal),
	}
}

// ToMinorUnits converts a dollar amount to cents. Amounts must be non-negative whole cents.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative: %s", amount)
	}
	cents := amount.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount has fractional cents: %s", amount)
	}
	return cents.IntPart(), nil
}

// FromMinorUnits converts cents to a dollar amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
