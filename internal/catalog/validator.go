// Package catalog provides catalog validation.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var productIDRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?$`)

var productCategories = map[string]bool{
	"ebike":     true,
	"surfboard": true,
}

func (v *Validator) Validate(catalog *Catalog) error {
	if catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if err := v.validateStore(&catalog.Store); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if len(catalog.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	ids := make(map[string]bool)
	for i, product := range catalog.Products {
		if err := v.validateProduct(&product); err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}

		if ids[product.ID] {
			return fmt.Errorf("duplicate product id: %s", product.ID)
		}
		ids[product.ID] = true
	}

	return nil
}

func (v *Validator) validateStore(store *StoreConfig) error {
	if strings.TrimSpace(store.Name) == "" {
		return fmt.Errorf("store name is required")
	}

	if store.Currency != "usd" {
		return fmt.Errorf("only USD currency is supported")
	}

	if store.MaxQuantity <= 0 {
		return fmt.Errorf("max quantity must be positive")
	}

	if store.Shipping.Rate.IsNegative() {
		return fmt.Errorf("shipping rate must be zero or positive")
	}

	if store.Shipping.Cap.IsNegative() {
		return fmt.Errorf("shipping cap must be zero or positive")
	}

	return nil
}

func (v *Validator) validateProduct(product *Product) error {
	if !productIDRegex.MatchString(product.ID) {
		return fmt.Errorf("product id %q must be a lowercase slug", product.ID)
	}

	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("product name is required")
	}

	if !productCategories[product.Category] {
		return fmt.Errorf("unsupported product category: %q", product.Category)
	}

	if !product.Price.IsPositive() {
		return fmt.Errorf("product price must be positive")
	}

	if !product.Price.Equal(product.Price.Round(2)) {
		return fmt.Errorf("product price must be in whole cents")
	}

	return nil
}
