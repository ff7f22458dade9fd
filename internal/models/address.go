package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ShippingAddress struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid fields: %s", strings.Join(e.Fields, ", "))
}

var addressValidator = validator.New()

var addressFieldNames = map[string]string{
	"Line1":      "line1",
	"City":       "city",
	"State":      "state",
	"PostalCode": "postal_code",
	"Country":    "country",
}

// Validate checks that every required postal field is present.
func (a *ShippingAddress) Validate() error {
	if a == nil {
		return &ValidationError{Fields: []string{"line1", "city", "state", "postal_code", "country"}}
	}

	trimmed := a.Normalized()
	if err := addressValidator.Struct(trimmed); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return err
		}
		fields := make([]string, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			name, ok := addressFieldNames[fieldErr.Field()]
			if !ok {
				name = fieldErr.Field()
			}
			fields = append(fields, name)
		}
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Normalized returns a copy with surrounding whitespace removed.
func (a ShippingAddress) Normalized() ShippingAddress {
	return ShippingAddress{
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

// Lines formats the address for display, skipping empty parts.
func (a *ShippingAddress) Lines() []string {
	if a == nil {
		return nil
	}
	lines := make([]string, 0, 4)
	if a.Line1 != "" {
		lines = append(lines, a.Line1)
	}
	if a.Line2 != "" {
		lines = append(lines, a.Line2)
	}
	if a.City != "" || a.State != "" || a.PostalCode != "" {
		lines = append(lines, fmt.Sprintf("%s, %s %s", a.City, a.State, a.PostalCode))
	}
	if a.Country != "" {
		lines = append(lines, a.Country)
	}
	return lines
}
