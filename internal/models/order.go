package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusCart      OrderStatus = "cart"
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusCancelled OrderStatus = "cancelled"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
)

var ErrInvalidStatusTransition = errors.New("invalid order status transition")

// allowedTransitions lists the forward edges of the order state machine.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusCart:    {StatusPending, StatusPaid, StatusCancelled},
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(value)
	if !status.Valid() {
		return "", fmt.Errorf("unknown order status: %q", value)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCart, StatusPending, StatusPaid, StatusCancelled, StatusShipped, StatusDelivered:
		return true
	default:
		return false
	}
}

// IsUnconfirmed reports whether payment has not been confirmed yet.
func (s OrderStatus) IsUnconfirmed() bool {
	return s == StatusCart || s == StatusPending
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsConfirmed reports whether payment was received, regardless of fulfillment progress.
func (s OrderStatus) IsConfirmed() bool {
	return s == StatusPaid || s == StatusShipped || s == StatusDelivered
}

// CanTransition reports whether an order may move from one status to another.
// Moving to the current status is allowed and treated as a no-op by callers.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryShipping DeliveryMethod = "delivery"
)

func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	switch DeliveryMethod(value) {
	case "", DeliveryPickup:
		return DeliveryPickup, nil
	case DeliveryShipping:
		return DeliveryShipping, nil
	default:
		return "", fmt.Errorf("unknown delivery method: %q", value)
	}
}

type OrderItem struct {
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
}

// LineTotal is price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	PrivateID       uuid.UUID        `json:"private_id"`
	OrderID         string           `json:"order_id"`
	UserID          string           `json:"user_id"`
	StripeSessionID string           `json:"stripe_session_id"`
	Items           []OrderItem      `json:"items"`
	DeliveryMethod  DeliveryMethod   `json:"delivery_method"`
	ShippingCost    decimal.Decimal  `json:"shipping_cost"`
	Total           decimal.Decimal  `json:"total"`
	Status          OrderStatus      `json:"status"`
	ShippingAddress *ShippingAddress `json:"shipping_address,omitempty"`
	CustomerEmail   string           `json:"customer_email,omitempty"`
	Shipment        *Shipment        `json:"shipment,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Subtotal is the sum of line totals, excluding shipping.
func (o *Order) Subtotal() decimal.Decimal {
	return Subtotal(o.Items)
}

func Subtotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// Clone returns a deep copy so stores never hand out shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cloned := *o
	if o.Items != nil {
		cloned.Items = make([]OrderItem, len(o.Items))
		copy(cloned.Items, o.Items)
	}
	if o.ShippingAddress != nil {
		address := *o.ShippingAddress
		cloned.ShippingAddress = &address
	}
	if o.Shipment != nil {
		shipment := *o.Shipment
		cloned.Shipment = &shipment
	}
	return &cloned
}

// OrderPatch carries the mutable fields of an order. Nil fields are left untouched.
type OrderPatch struct {
	Status          *OrderStatus
	ShippingAddress *ShippingAddress
	CustomerEmail   *string
	Shipment        *Shipment
}

func (p OrderPatch) IsEmpty() bool {
	return p.Status == nil && p.ShippingAddress == nil && p.CustomerEmail == nil && p.Shipment == nil
}

// Apply merges the patch into the order in place.
func (p OrderPatch) Apply(order *Order) {
	if order == nil {
		return
	}
	if p.Status != nil {
		order.Status = *p.Status
	}
	if p.ShippingAddress != nil {
		address := *p.ShippingAddress
		order.ShippingAddress = &address
	}
	if p.CustomerEmail != nil {
		order.CustomerEmail = *p.CustomerEmail
	}
	if p.Shipment != nil {
		shipment := *p.Shipment
		order.Shipment = &shipment
	}
}
