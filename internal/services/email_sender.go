package services

import (
	"context"
	"fmt"

	"github.com/norcalbattery/storefront/internal/email"
	"github.com/norcalbattery/storefront/internal/models"
)

type OrderEmailSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
	SendOrderShipped(ctx context.Context, order *models.Order) error
	SendOrderDelivered(ctx context.Context, order *models.Order) error
}

type ProviderOrderEmailSender struct {
	provider email.Provider
	store    StoreInfo
	taxFor   func(order *models.Order) string
}

// NewProviderOrderEmailSender returns a sender for provider. A nil provider yields a no-op sender.
func NewProviderOrderEmailSender(provider email.Provider, store StoreInfo, orders *OrderService) OrderEmailSender {
	if provider == nil {
		return noopOrderEmailSender{}
	}
	return &ProviderOrderEmailSender{
		provider: provider,
		store:    store,
		taxFor: func(order *models.Order) string {
			if orders == nil {
				return ""
			}
			return formatPrice(orders.CalculateTax(order))
		},
	}
}

func (s *ProviderOrderEmailSender) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	info, err := s.orderInfo(order)
	if err != nil {
		return err
	}
	return email.SendOrderConfirmation(ctx, s.provider, info)
}

func (s *ProviderOrderEmailSender) SendOrderShipped(ctx context.Context, order *models.Order) error {
	info, err := s.orderInfo(order)
	if err != nil {
		return err
	}
	return email.SendOrderShipped(ctx, s.provider, info)
}

func (s *ProviderOrderEmailSender) SendOrderDelivered(ctx context.Context, order *models.Order) error {
	info, err := s.orderInfo(order)
	if err != nil {
		return err
	}
	return email.SendOrderDelivered(ctx, s.provider, info)
}

func (s *ProviderOrderEmailSender) orderInfo(order *models.Order) (*email.OrderInfo, error) {
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}
	if order.CustomerEmail == "" {
		return nil, fmt.Errorf("order %s has no customer email", order.OrderID)
	}
	info := BuildOrderInfo(s.store, order)
	if tax := s.taxFor(order); tax != "" {
		info.Tax = tax
	}
	return info, nil
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderConfirmation(context.Context, *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendOrderShipped(context.Context, *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendOrderDelivered(context.Context, *models.Order) error {
	return nil
}
