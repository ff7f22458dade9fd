// Package catalog provides the product catalog: parsing, validation and cart pricing.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var defaultCatalog []byte

type Catalog struct {
	Store    StoreConfig `yaml:"store" json:"store"`
	Products []Product   `yaml:"products" json:"products"`
}

type StoreConfig struct {
	Name        string         `yaml:"name" json:"name"`
	Currency    string         `yaml:"currency" json:"currency"`
	MaxQuantity int            `yaml:"max_quantity" json:"max_quantity"`
	Shipping    ShippingConfig `yaml:"shipping" json:"shipping"`
}

// ShippingConfig describes the delivery estimate: rate times subtotal, capped.
type ShippingConfig struct {
	Rate      decimal.Decimal `yaml:"rate" json:"rate"`
	Cap       decimal.Decimal `yaml:"cap" json:"cap"`
	Countries []string        `yaml:"countries" json:"countries"`
}

type Product struct {
	ID       string          `yaml:"id" json:"id"`
	Name     string          `yaml:"name" json:"name"`
	Category string          `yaml:"category" json:"category"`
	Capacity string          `yaml:"capacity" json:"capacity"`
	Price    decimal.Decimal `yaml:"price" json:"price"`
	Image    string          `yaml:"image" json:"image,omitempty"`
	Active   bool            `yaml:"active" json:"active"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &catalog, nil
}

func (p *Parser) ParseFromString(content string) (*Catalog, error) {
	return p.Parse([]byte(content))
}

// LoadDefault parses and validates the catalog bundled with the binary.
func LoadDefault() (*Catalog, error) {
	catalog, err := NewParser().Parse(defaultCatalog)
	if err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(catalog); err != nil {
		return nil, fmt.Errorf("invalid bundled catalog: %w", err)
	}
	return catalog, nil
}

// LoadFile parses and validates a catalog file, replacing the bundled one.
func LoadFile(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	catalog, err := NewParser().Parse(content)
	if err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(catalog); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Find returns the product with the given id, or nil.
func (c *Catalog) Find(id string) *Product {
	if c == nil {
		return nil
	}
	for i := range c.Products {
		if c.Products[i].ID == id {
			return &c.Products[i]
		}
	}
	return nil
}

// ActiveProducts returns the products currently offered for sale.
func (c *Catalog) ActiveProducts() []Product {
	if c == nil {
		return nil
	}
	products := make([]Product, 0, len(c.Products))
	for _, product := range c.Products {
		if product.Active {
			products = append(products, product)
		}
	}
	return products
}
