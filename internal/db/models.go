package db

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/norcalbattery/storefront/internal/models"
)

type Order = models.Order
type OrderItem = models.OrderItem
type OrderPatch = models.OrderPatch
type OrderStatus = models.OrderStatus

const (
	StatusCart      = models.StatusCart
	StatusPending   = models.StatusPending
	StatusPaid      = models.StatusPaid
	StatusCancelled = models.StatusCancelled
	StatusShipped   = models.StatusShipped
	StatusDelivered = models.StatusDelivered
)

// prepareForCreate fills the identifiers and timestamps a new record needs.
func prepareForCreate(order *Order, now time.Time) *Order {
	record := order.Clone()
	if record.PrivateID == uuid.Nil {
		record.PrivateID = uuid.New()
	}
	if record.OrderID == "" {
		record.OrderID = models.NewOrderID()
	}
	if record.Status == "" {
		record.Status = StatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = now.UTC()
	return record
}

// sortNewestFirst orders by creation time descending, breaking ties by order id.
func sortNewestFirst(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].OrderID > orders[j].OrderID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func applyLimit(orders []*Order, limit int) []*Order {
	if limit > 0 && len(orders) > limit {
		return orders[:limit]
	}
	return orders
}
