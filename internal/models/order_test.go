package models

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{name: "cart to pending", from: StatusCart, to: StatusPending, want: true},
		{name: "cart to paid", from: StatusCart, to: StatusPaid, want: true},
		{name: "pending to paid", from: StatusPending, to: StatusPaid, want: true},
		{name: "pending to cancelled", from: StatusPending, to: StatusCancelled, want: true},
		{name: "paid to shipped", from: StatusPaid, to: StatusShipped, want: true},
		{name: "paid to cancelled", from: StatusPaid, to: StatusCancelled, want: true},
		{name: "shipped to delivered", from: StatusShipped, to: StatusDelivered, want: true},
		{name: "paid to paid", from: StatusPaid, to: StatusPaid, want: true},
		{name: "paid to pending", from: StatusPaid, to: StatusPending, want: false},
		{name: "pending to shipped", from: StatusPending, to: StatusShipped, want: false},
		{name: "delivered to cancelled", from: StatusDelivered, to: StatusCancelled, want: false},
		{name: "cancelled to paid", from: StatusCancelled, to: StatusPaid, want: false},
		{name: "unknown target", from: StatusPaid, to: OrderStatus("refunded"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestOrderStatusClassification(t *testing.T) {
	t.Parallel()

	if !StatusCart.IsUnconfirmed() || !StatusPending.IsUnconfirmed() {
		t.Fatal("expected cart and pending to be unconfirmed")
	}
	if StatusPaid.IsUnconfirmed() {
		t.Fatal("expected paid to be confirmed")
	}
	if !StatusDelivered.IsTerminal() || !StatusCancelled.IsTerminal() {
		t.Fatal("expected delivered and cancelled to be terminal")
	}
	if StatusShipped.IsTerminal() {
		t.Fatal("expected shipped to be non-terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	t.Parallel()

	if _, err := ParseOrderStatus("shipped"); err != nil {
		t.Fatalf("expected shipped to parse, got %v", err)
	}
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOrderSubtotalAndLineTotal(t *testing.T) {
	t.Parallel()

	order := &Order{Items: []OrderItem{
		{Name: "Eco Rider", Price: decimal.RequireFromString("299.99"), Quantity: 2},
		{Name: "Wave Rider", Price: decimal.RequireFromString("199.99"), Quantity: 1},
	}}

	want := decimal.RequireFromString("799.97")
	if got := order.Subtotal(); !got.Equal(want) {
		t.Fatalf("expected subtotal %s, got %s", want, got)
	}
}

func TestOrderCloneIsDeep(t *testing.T) {
	t.Parallel()

	original := &Order{
		Items:           []OrderItem{{Name: "Surf Pro", Price: decimal.NewFromInt(10), Quantity: 1}},
		ShippingAddress: &ShippingAddress{Line1: "1 Main St"},
		Shipment:        &Shipment{Carrier: CarrierUPS, TrackingNumber: "1Z"},
	}
	cloned := original.Clone()
	cloned.Items[0].Quantity = 5
	cloned.ShippingAddress.Line1 = "2 Main St"
	cloned.Shipment.TrackingNumber = "2Z"

	if original.Items[0].Quantity != 1 {
		t.Fatal("expected clone items to be independent")
	}
	if original.ShippingAddress.Line1 != "1 Main St" {
		t.Fatal("expected clone address to be independent")
	}
	if original.Shipment.TrackingNumber != "1Z" {
		t.Fatal("expected clone shipment to be independent")
	}
}

func TestOrderPatchApply(t *testing.T) {
	t.Parallel()

	status := StatusPaid
	email := "buyer@example.com"
	order := &Order{Status: StatusPending}

	OrderPatch{Status: &status, CustomerEmail: &email}.Apply(order)

	if order.Status != StatusPaid {
		t.Fatalf("expected status paid, got %s", order.Status)
	}
	if order.CustomerEmail != email {
		t.Fatalf("expected email %q, got %q", email, order.CustomerEmail)
	}
	if order.ShippingAddress != nil {
		t.Fatal("expected address to be untouched")
	}
	if !(OrderPatch{}).IsEmpty() {
		t.Fatal("expected zero patch to be empty")
	}
	if (OrderPatch{Shipment: &Shipment{TrackingNumber: "1Z"}}).IsEmpty() {
		t.Fatal("expected shipment patch to be non-empty")
	}
}

func TestShippingAddressValidate(t *testing.T) {
	t.Parallel()

	complete := &ShippingAddress{Line1: "1 Main St", City: "Chico", State: "CA", PostalCode: "95928", Country: "US"}
	if err := complete.Validate(); err != nil {
		t.Fatalf("expected complete address to validate, got %v", err)
	}

	missing := &ShippingAddress{Line1: "1 Main St", City: "  ", State: "CA", Country: "US"}
	err := missing.Validate()
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.Fields) != 2 || validationErr.Fields[0] != "city" || validationErr.Fields[1] != "postal_code" {
		t.Fatalf("unexpected fields: %v", validationErr.Fields)
	}

	var nilAddress *ShippingAddress
	if err := nilAddress.Validate(); err == nil {
		t.Fatal("expected nil address to fail validation")
	}
}

func TestNewOrderIDFormat(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^OP-[0-9A-Z]+-[0-9A-Z]{8}$`)
	id := newOrderIDAt(time.UnixMilli(1700000000000))
	if !pattern.MatchString(id) {
		t.Fatalf("unexpected order id format: %s", id)
	}
	if id[:11] != "OP-LOYW3V28" {
		t.Fatalf("unexpected timestamp segment: %s", id)
	}
	if NewOrderID() == NewOrderID() {
		t.Fatal("expected order ids to differ")
	}
}
