package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/norcalbattery/storefront/internal/cache"
	"github.com/norcalbattery/storefront/internal/config"
	"github.com/norcalbattery/storefront/internal/db"
	"github.com/norcalbattery/storefront/internal/guest"
	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/services"
	"github.com/norcalbattery/storefront/internal/session"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxJSONBodyBytes    = 64 << 10
)

// Handlers provides HTTP request handlers for the storefront API.
type Handlers struct {
	config          *config.Config
	orderStore      db.OrderStore
	cacheProvider   cache.Provider
	stripeRouter    *StripeEventRouter
	checkoutService *services.CheckoutService
	orderService    *services.OrderService
	adminService    *services.AdminService
	authService     *services.AuthService
	sessionManager  *session.Manager
	guestIssuer     *guest.Issuer
	checkoutLimiter *ipRateLimiter
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	OrderStore      db.OrderStore
	CacheProvider   cache.Provider
	StripeRouter    *StripeEventRouter
	CheckoutService *services.CheckoutService
	OrderService    *services.OrderService
	AdminService    *services.AdminService
	// AuthService is nil when admin login is not configured.
	AuthService    *services.AuthService
	SessionManager *session.Manager
	GuestIssuer    *guest.Issuer
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.AdminService == nil {
		return nil, fmt.Errorf("handlers dependencies: adminService is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}
	if deps.GuestIssuer == nil {
		return nil, fmt.Errorf("handlers dependencies: guestIssuer is required")
	}

	limiter, err := newIPRateLimiter(deps.Config.CheckoutRatePerMinute)
	if err != nil {
		return nil, fmt.Errorf("handlers dependencies: %w", err)
	}

	return &Handlers{
		config:          deps.Config,
		orderStore:      deps.OrderStore,
		cacheProvider:   deps.CacheProvider,
		stripeRouter:    deps.StripeRouter,
		checkoutService: deps.CheckoutService,
		orderService:    deps.OrderService,
		adminService:    deps.AdminService,
		authService:     deps.AuthService,
		sessionManager:  deps.SessionManager,
		guestIssuer:     deps.GuestIssuer,
		checkoutLimiter: limiter,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.orderStore.Ping(ctx); err != nil {
		logger.Error("order store health check failed", "error", err)
		writeJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SessionMiddleware adds admin session data to the request context
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return h.sessionManager.RequireAuth(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) isSecure() bool {
	return SecureCookiesFromConfig(h.config)
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
