// Package catalog provides price calculation functionality.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/models"
)

var (
	ErrUnknownProduct  = errors.New("unknown product")
	ErrInactiveProduct = errors.New("product is not available")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// CartLine is an item as submitted by a client: only the product and quantity are trusted.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

// Resolve turns cart lines into order items priced from the catalog.
// Repeated lines for the same product are merged.
func (p *Pricer) Resolve(catalog *Catalog, lines []CartLine) ([]models.OrderItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidQuantity)
	}

	maxQuantity := catalog.Store.MaxQuantity
	items := make([]models.OrderItem, 0, len(lines))
	positions := make(map[string]int, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		product := catalog.Find(id)
		if product == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, id)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: %q", ErrInactiveProduct, id)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %d for %q", ErrInvalidQuantity, line.Quantity, id)
		}

		if pos, ok := positions[id]; ok {
			items[pos].Quantity += line.Quantity
		} else {
			positions[id] = len(items)
			items = append(items, models.OrderItem{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  line.Quantity,
			})
		}
		if maxQuantity > 0 && items[positions[id]].Quantity > maxQuantity {
			return nil, fmt.Errorf("%w: at most %d of %q per order", ErrInvalidQuantity, maxQuantity, id)
		}
	}

	return items, nil
}

// EstimateShipping applies the store's delivery rate to the subtotal, capped, rounded to cents.
func (p *Pricer) EstimateShipping(catalog *Catalog, subtotal decimal.Decimal) decimal.Decimal {
	if catalog == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}
	estimate := subtotal.Mul(catalog.Store.Shipping.Rate)
	if limit := catalog.Store.Shipping.Cap; limit.IsPositive() && estimate.GreaterThan(limit) {
		estimate = limit
	}
	return estimate.Round(2)
}
