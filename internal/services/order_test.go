package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/catalog"
	"github.com/norcalbattery/storefront/internal/db"
	"github.com/norcalbattery/storefront/internal/models"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	c, err := catalog.LoadDefault()
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	return c
}

func newTestOrderService(t *testing.T) (*OrderService, *db.MemoryOrderStore) {
	t.Helper()

	store := db.NewMemoryOrderStore()
	return NewOrderService(store, OrderServiceOptions{Catalog: testCatalog(t)}), store
}

func testItems() []models.OrderItem {
	return []models.OrderItem{
		{ProductID: "eco-rider", Name: "Eco Rider", Price: decimal.RequireFromString("299.99"), Quantity: 2},
	}
}

func createTestOrder(t *testing.T, service *OrderService, sessionID, userID string, delivery models.DeliveryMethod) *models.Order {
	t.Helper()

	order, err := service.CreateOrder(context.Background(), CreateOrderInput{
		Items:           testItems(),
		UserID:          userID,
		DeliveryMethod:  delivery,
		StripeSessionID: sessionID,
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func TestCreateOrder_ComputesTotals(t *testing.T) {
	t.Parallel()

	service, _ := newTestOrderService(t)
	order := createTestOrder(t, service, "cs_test_1", "guest-1", models.DeliveryShipping)

	if order.Status != models.StatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if !strings.HasPrefix(order.OrderID, "OP-") {
		t.Fatalf("expected generated order id, got %q", order.OrderID)
	}
	if order.PrivateID == uuid.Nil {
		t.Fatal("expected private id to be assigned")
	}
	if !order.ShippingCost.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("expected estimated shipping 60.00, got %s", order.ShippingCost)
	}
	if !order.Total.Equal(decimal.RequireFromString("659.98")) {
		t.Fatalf("expected total 659.98, got %s", order.Total)
	}
}

func TestCreateOrder_ExplicitDeliveryShipping(t *testing.T) {
	t.Parallel()

	service, _ := newTestOrderService(t)
	shipping := decimal.RequireFromString("15.00")
	order, err := service.CreateOrder(context.Background(), CreateOrderInput{
		Items: []models.OrderItem{
			{ProductID: "eco-rider", Name: "Eco Rider", Price: decimal.RequireFromString("299.99"), Quantity: 1},
		},
		UserID:          "guest-1",
		DeliveryMethod:  models.DeliveryShipping,
		ShippingCost:    &shipping,
		StripeSessionID: "cs_test_explicit_shipping",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.ShippingCost.Equal(shipping) {
		t.Fatalf("expected shipping 15.00, got %s", order.ShippingCost)
	}
	if !order.Total.Equal(decimal.RequireFromString("314.99")) {
		t.Fatalf("expected total 314.99, got %s", order.Total)
	}
}

func TestCreateOrder_PickupForcesZeroShipping(t *testing.T) {
	t.Parallel()

	service, _ := newTestOrderService(t)
	shipping := decimal.RequireFromString("25")
	order, err := service.CreateOrder(context.Background(), CreateOrderInput{
		Items:           testItems(),
		UserID:          "guest-1",
		DeliveryMethod:  models.DeliveryPickup,
		ShippingCost:    &shipping,
		StripeSessionID: "cs_test_pickup",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !order.ShippingCost.IsZero() {
		t.Fatalf("expected zero shipping for pickup, got %s", order.ShippingCost)
	}
	if !order.Total.Equal(decimal.RequireFromString("599.98")) {
		t.Fatalf("expected total 599.98, got %s", order.Total)
	}
}

func TestCreateOrder_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	valid := func() CreateOrderInput {
		return CreateOrderInput{Items: testItems(), UserID: "guest-1", StripeSessionID: "cs_test_invalid"}
	}

	tests := []struct {
		name   string
		mutate func(in *CreateOrderInput)
	}{
		{name: "no items", mutate: func(in *CreateOrderInput) { in.Items = nil }},
		{name: "zero quantity", mutate: func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }},
		{name: "negative price", mutate: func(in *CreateOrderInput) { in.Items[0].Price = decimal.NewFromInt(-1) }},
		{name: "missing session", mutate: func(in *CreateOrderInput) { in.StripeSessionID = " " }},
		{name: "missing user", mutate: func(in *CreateOrderInput) { in.UserID = "" }},
		{name: "paid on creation", mutate: func(in *CreateOrderInput) { in.Status = models.StatusPaid }},
		{name: "unknown delivery", mutate: func(in *CreateOrderInput) { in.DeliveryMethod = "drone" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			service, store := newTestOrderService(t)
			input := valid()
			tt.mutate(&input)

			_, err := service.CreateOrder(context.Background(), input)
			if !errors.Is(err, ErrInvalidOrderInput) {
				t.Fatalf("expected ErrInvalidOrderInput, got %v", err)
			}
			orders, _ := store.FindAll(context.Background(), 0)
			if len(orders) != 0 {
				t.Fatalf("expected nothing persisted, got %d orders", len(orders))
			}
		})
	}
}

func TestCreateOrder_DuplicateSession(t *testing.T) {
	t.Parallel()

	service, _ := newTestOrderService(t)
	createTestOrder(t, service, "cs_test_dup", "guest-1", models.DeliveryPickup)

	_, err := service.CreateOrder(context.Background(), CreateOrderInput{
		Items:           testItems(),
		UserID:          "guest-2",
		StripeSessionID: "cs_test_dup",
	})
	if !errors.Is(err, db.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _ := newTestOrderService(t)
	order := createTestOrder(t, service, "cs_test_status", "guest-1", models.DeliveryPickup)

	paid, err := service.UpdateOrderStatus(ctx, order.PrivateID, models.StatusPaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid.Status != models.StatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}

	again, err := service.UpdateOrderStatus(ctx, order.PrivateID, models.StatusPaid)
	if err != nil {
		t.Fatalf("expected same-status update to succeed, got %v", err)
	}
	if !again.UpdatedAt.Equal(paid.UpdatedAt) {
		t.Fatal("expected same-status update not to write")
	}

	if _, err := service.UpdateOrderStatus(ctx, order.PrivateID, models.StatusPending); !errors.Is(err, models.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}

	if _, err := service.UpdateOrderStatus(ctx, uuid.New(), models.StatusPaid); !errors.Is(err, db.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestReconcileAfterPaymentReturn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _ := newTestOrderService(t)
	order := createTestOrder(t, service, "cs_test_reconcile", "guest-1", models.DeliveryShipping)

	for i := 0; i < 2; i++ {
		reconciled, err := service.ReconcileAfterPaymentReturn(ctx, "cs_test_reconcile")
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if reconciled.Status != models.StatusPaid {
			t.Fatalf("attempt %d: expected paid, got %s", i, reconciled.Status)
		}
		if !reconciled.Total.Equal(order.Total) {
			t.Fatalf("attempt %d: expected total %s to be unchanged, got %s", i, order.Total, reconciled.Total)
		}
	}

	if _, err := service.UpdateOrderStatus(ctx, order.PrivateID, models.StatusShipped); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shipped, err := service.ReconcileAfterPaymentReturn(ctx, "cs_test_reconcile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shipped.Status != models.StatusShipped {
		t.Fatalf("expected shipped order to stay shipped, got %s", shipped.Status)
	}

	if _, err := service.ReconcileAfterPaymentReturn(ctx, "cs_missing"); !errors.Is(err, db.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCancelUnconfirmed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _ := newTestOrderService(t)
	createTestOrder(t, service, "cs_test_abandoned", "guest-1", models.DeliveryPickup)
	createTestOrder(t, service, "cs_test_paid", "guest-1", models.DeliveryPickup)

	cancelled, err := service.CancelUnconfirmed(ctx, "cs_test_abandoned")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	if _, err := service.ReconcileAfterPaymentReturn(ctx, "cs_test_paid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	paid, err := service.CancelUnconfirmed(ctx, "cs_test_paid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid.Status != models.StatusPaid {
		t.Fatalf("expected paid order to stay paid, got %s", paid.Status)
	}
}

func TestUpdateShippingAddress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, store := newTestOrderService(t)
	order := createTestOrder(t, service, "cs_test_address", "guest-1", models.DeliveryShipping)

	_, err := service.UpdateShippingAddress(ctx, order.PrivateID, models.ShippingAddress{Line1: "1 Main St", State: "CA"})
	if !errors.Is(err, ErrInvalidOrderInput) {
		t.Fatalf("expected ErrInvalidOrderInput, got %v", err)
	}
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	stored, _ := store.FindByID(ctx, order.PrivateID)
	if stored.ShippingAddress != nil {
		t.Fatal("expected rejected address not to be stored")
	}

	updated, err := service.UpdateShippingAddress(ctx, order.PrivateID, models.ShippingAddress{
		Line1:      " 1 Main St ",
		City:       "Sacramento",
		State:      "CA",
		PostalCode: "95814",
		Country:    "US",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ShippingAddress == nil || updated.ShippingAddress.Line1 != "1 Main St" {
		t.Fatalf("expected normalized address, got %+v", updated.ShippingAddress)
	}
}

func TestGetOrdersForUser_ExcludesUnconfirmed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _ := newTestOrderService(t)

	createTestOrder(t, service, "cs_pending", "guest-1", models.DeliveryPickup)
	paid := createTestOrder(t, service, "cs_paid", "guest-1", models.DeliveryPickup)
	cancelled := createTestOrder(t, service, "cs_cancelled", "guest-1", models.DeliveryPickup)
	createTestOrder(t, service, "cs_other_user", "guest-2", models.DeliveryPickup)
	if _, err := service.CreateOrder(ctx, CreateOrderInput{
		Items: testItems(), UserID: "guest-1", StripeSessionID: "cs_cart", Status: models.StatusCart,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.ReconcileAfterPaymentReturn(ctx, "cs_paid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.CancelUnconfirmed(ctx, "cs_cancelled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orders, err := service.GetOrdersForUser(ctx, "guest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 visible orders, got %d", len(orders))
	}
	seen := map[uuid.UUID]bool{}
	for _, order := range orders {
		seen[order.PrivateID] = true
	}
	if !seen[paid.PrivateID] || !seen[cancelled.PrivateID] {
		t.Fatalf("expected paid and cancelled orders, got %+v", orders)
	}

	if _, err := service.GetOrdersForUser(ctx, ""); !errors.Is(err, ErrInvalidOrderInput) {
		t.Fatalf("expected ErrInvalidOrderInput, got %v", err)
	}
}

func TestCalculateTax(t *testing.T) {
	t.Parallel()

	service, _ := newTestOrderService(t)

	tests := []struct {
		total string
		want  string
	}{
		{total: "659.98", want: "66.00"},
		{total: "299.99", want: "30.00"},
		{total: "0", want: "0"},
	}

	for _, tt := range tests {
		got := service.CalculateTax(&models.Order{Total: decimal.RequireFromString(tt.total)})
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("expected tax %s on %s, got %s", tt.want, tt.total, got)
		}
	}

	if !service.CalculateTax(nil).IsZero() {
		t.Fatal("expected zero tax for nil order")
	}
}

func TestCalculateTax_ConfiguredRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate string
		want string
	}{
		{name: "no tax", rate: "0", want: "0"},
		{name: "reduced", rate: "0.0725", want: "7.25"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rate := decimal.RequireFromString(tt.rate)
			service := NewOrderService(db.NewMemoryOrderStore(), OrderServiceOptions{TaxRate: &rate})
			got := service.CalculateTax(&models.Order{Total: decimal.RequireFromString("100.00")})
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("expected tax %s, got %s", tt.want, got)
			}
		})
	}
}

type failingOrderStore struct {
	*db.MemoryOrderStore
	err error
}

func (s *failingOrderStore) FindByID(context.Context, uuid.UUID) (*models.Order, error) {
	return nil, s.err
}

func (s *failingOrderStore) Create(context.Context, *models.Order) (*models.Order, error) {
	return nil, s.err
}

func TestStoreFailuresAreNotNotFound(t *testing.T) {
	t.Parallel()

	store := &failingOrderStore{
		MemoryOrderStore: db.NewMemoryOrderStore(),
		err:              &db.PersistenceError{Op: "find by id", Err: errors.New("disk unavailable")},
	}
	service := NewOrderService(store, OrderServiceOptions{Catalog: testCatalog(t)})

	_, err := service.GetOrder(context.Background(), uuid.New())
	if !errors.Is(err, db.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if errors.Is(err, db.ErrOrderNotFound) {
		t.Fatal("expected persistence failure not to look like not-found")
	}

	_, err = service.CreateOrder(context.Background(), CreateOrderInput{
		Items: testItems(), UserID: "guest-1", StripeSessionID: "cs_test_fail",
	})
	if !errors.Is(err, db.ErrPersistence) {
		t.Fatalf("expected ErrPersistence from create, got %v", err)
	}
}

// flakyUpdateStore fails the next Update call and then behaves normally.
type flakyUpdateStore struct {
	*db.MemoryOrderStore
	failNext bool
}

func (s *flakyUpdateStore) Update(ctx context.Context, id uuid.UUID, patch models.OrderPatch) (*models.Order, error) {
	if s.failNext {
		s.failNext = false
		return nil, &db.PersistenceError{Op: "update", Err: errors.New("connection reset")}
	}
	return s.MemoryOrderStore.Update(ctx, id, patch)
}

func TestFulfillOrder_WritesStatusAndShipmentTogether(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &flakyUpdateStore{MemoryOrderStore: db.NewMemoryOrderStore()}
	service := NewOrderService(store, OrderServiceOptions{Catalog: testCatalog(t)})
	order := createTestOrder(t, service, "cs_test_fulfill", "guest-1", models.DeliveryShipping)
	if _, err := service.ReconcileAfterPaymentReturn(ctx, "cs_test_fulfill"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shipment := &models.Shipment{Carrier: models.CarrierFedEx, TrackingNumber: "794644790138"}
	store.failNext = true
	if _, _, err := service.FulfillOrder(ctx, order.PrivateID, models.StatusShipped, shipment); !errors.Is(err, db.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	unchanged, err := service.GetOrder(ctx, order.PrivateID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unchanged.Status != models.StatusPaid || unchanged.Shipment != nil {
		t.Fatalf("expected failed write to leave order paid without tracking, got %s %+v", unchanged.Status, unchanged.Shipment)
	}

	shipped, before, err := service.FulfillOrder(ctx, order.PrivateID, models.StatusShipped, shipment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before != models.StatusPaid {
		t.Fatalf("expected previous status paid, got %s", before)
	}
	if shipped.Status != models.StatusShipped || shipped.Shipment == nil || *shipped.Shipment != *shipment {
		t.Fatalf("expected shipped order with tracking, got %s %+v", shipped.Status, shipped.Shipment)
	}
}
