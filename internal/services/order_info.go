package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/email"
	"github.com/norcalbattery/storefront/internal/models"
)

// StoreInfo identifies the storefront in customer-facing messages.
type StoreInfo struct {
	Name string
	URL  string
}

// BuildOrderInfo builds a consistent OrderInfo payload for email templates.
func BuildOrderInfo(store StoreInfo, order *models.Order) *email.OrderInfo {
	if order == nil {
		return &email.OrderInfo{StoreName: store.Name, StoreURL: store.URL}
	}

	orderDate := order.CreatedAt
	if orderDate.IsZero() {
		orderDate = time.Now()
	}

	items := make([]email.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, email.OrderItem{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  formatPrice(item.Price),
			TotalPrice: formatPrice(item.LineTotal()),
		})
	}

	shippingAddress := ""
	if order.ShippingAddress != nil {
		shippingAddress = strings.Join(order.ShippingAddress.Lines(), "\n")
	}

	info := &email.OrderInfo{
		OrderNumber:     order.OrderID,
		CustomerEmail:   strings.TrimSpace(order.CustomerEmail),
		StoreName:       store.Name,
		StoreURL:        store.URL,
		OrderDate:       orderDate.Format("January 2, 2006"),
		DeliveryMethod:  string(order.DeliveryMethod),
		ShippingAddress: shippingAddress,
		Items:           items,
		Subtotal:        formatPrice(order.Subtotal()),
		Shipping:        formatPrice(order.ShippingCost),
		Tax:             "$0.00",
		Total:           formatPrice(order.Total),
	}
	if order.Shipment != nil {
		info.Carrier = order.Shipment.Carrier
		info.TrackingNumber = order.Shipment.TrackingNumber
		info.TrackingURL = order.Shipment.TrackingURL()
	}
	return info
}

func formatPrice(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}
