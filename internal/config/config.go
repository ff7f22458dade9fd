package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port      string     `env:"PORT" envDefault:"8080"`
	BaseURL   string     `env:"BASE_URL" validate:"omitempty,url"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`

	SentryDSN              string  `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0.1" validate:"gte=0,lte=1"`

	OrderStoreBackend string `env:"ORDER_STORE_BACKEND" envDefault:"json" validate:"oneof=json mysql postgres memory"`
	OrderDataDir      string `env:"ORDER_DATA_DIR" envDefault:"data/orders" validate:"required_if=OrderStoreBackend json"`
	MySQLDSN          string `env:"MYSQL_DSN" validate:"required_if=OrderStoreBackend mysql"`
	DatabaseURL       string `env:"DATABASE_URL" validate:"required_if=OrderStoreBackend postgres"`

	StripeSecretKey     string          `env:"STRIPE_SECRET_KEY,required" validate:"required"`
	StripeWebhookSecret string          `env:"STRIPE_WEBHOOK_SECRET,required" validate:"required"`
	StripeCurrency      string          `env:"STRIPE_CURRENCY" envDefault:"usd" validate:"len=3"`
	TaxRate             decimal.Decimal `env:"TAX_RATE" envDefault:"0.10"`

	// CatalogPath overrides the bundled product catalog.
	CatalogPath string `env:"CATALOG_PATH"`

	GuestTokenSecret string `env:"GUEST_TOKEN_SECRET,required" validate:"required,min=32"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	GitHubClientID     string   `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string   `env:"GITHUB_CLIENT_SECRET"`
	AdminGitHubUsers   []string `env:"ADMIN_GITHUB_USERS" envSeparator:","`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=resend"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=EmailProvider resend"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_if=EmailProvider resend"`

	CheckoutRatePerMinute int `env:"CHECKOUT_RATE_PER_MINUTE" envDefault:"10" validate:"gte=1"`
	// TrustProxyHeaders makes client IPs come from X-Forwarded-For. Enable only behind one trusted proxy.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

var configValidator = validator.New()

// Load reads an optional .env file, then parses and validates the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("TAX_RATE must be between 0 and 1")
	}

	hasGitHubClientID := strings.TrimSpace(c.GitHubClientID) != ""
	hasGitHubClientSecret := strings.TrimSpace(c.GitHubClientSecret) != ""
	if hasGitHubClientID != hasGitHubClientSecret {
		return fmt.Errorf("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	if hasGitHubClientID {
		if baseURL == "" {
			return fmt.Errorf("BASE_URL is required when admin login is enabled")
		}
		if len(c.AdminUsers()) == 0 {
			return fmt.Errorf("ADMIN_GITHUB_USERS is required when admin login is enabled")
		}
	}

	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("BASE_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("BASE_URL must use https outside local development")
		}
	}

	return nil
}

// AdminEnabled reports whether GitHub login for the admin surface is configured.
func (c *Config) AdminEnabled() bool {
	return strings.TrimSpace(c.GitHubClientID) != "" && len(c.AdminUsers()) > 0
}

func (c *Config) AdminUsers() []string {
	users := make([]string, 0, len(c.AdminGitHubUsers))
	for _, user := range c.AdminGitHubUsers {
		if user = strings.TrimSpace(user); user != "" {
			users = append(users, user)
		}
	}
	return users
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
