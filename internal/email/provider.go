// Package email provides the email provider interface.
package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider   string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

// NewProvider returns the configured provider. An empty provider name disables email and returns nil.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "":
		return nil, nil
	case "resend":
		if config.APIKey == "" || config.From == "" {
			return nil, fmt.Errorf("resend requires RESEND_API_KEY and EMAIL_FROM")
		}
		return NewResendProvider(config.APIKey, config.From, config.HTTPClient), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be empty or 'resend'")
	}
}
