package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/norcalbattery/storefront/internal/cache"
	"github.com/norcalbattery/storefront/internal/catalog"
	"github.com/norcalbattery/storefront/internal/config"
	"github.com/norcalbattery/storefront/internal/db"
	"github.com/norcalbattery/storefront/internal/email"
	"github.com/norcalbattery/storefront/internal/guest"
	"github.com/norcalbattery/storefront/internal/handlers"
	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/observability"
	"github.com/norcalbattery/storefront/internal/services"
	"github.com/norcalbattery/storefront/internal/session"
	"github.com/norcalbattery/storefront/internal/stripe"
)

const outboundHTTPTimeout = 15 * time.Second

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	OrderStore     db.OrderStore
	EventLog       *logging.EventLog
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Handlers       *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			EnableTracing:    true,
			TracesSampleRate: cfg.SentryTracesSampleRate,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
		sentryEnabled = true
	}

	logger := logging.New(os.Stdout, logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Sentry: sentryEnabled,
	})

	a := &App{
		Config:        cfg,
		Logger:        logger,
		sentryEnabled: sentryEnabled,
	}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// init builds the components in dependency order. Whatever was opened before a failure is
// released by Close.
func (a *App) init() error {
	cfg := a.Config
	logger := a.Logger

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	products, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	orderStore, err := db.NewOrderStore(startupCtx, db.StoreOptions{
		Backend:     cfg.OrderStoreBackend,
		DataDir:     cfg.OrderDataDir,
		MySQLDSN:    cfg.MySQLDSN,
		DatabaseURL: cfg.DatabaseURL,
		Logger:      logger.With("component", "order_store"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize order store: %w", err)
	}
	a.OrderStore = orderStore
	logger.Info("order store ready", "backend", cfg.OrderStoreBackend)

	eventLogger := logger.With("component", "order_events")
	if strings.EqualFold(cfg.OrderStoreBackend, db.BackendJSON) {
		eventLog, err := logging.OpenEventLog(cfg.OrderDataDir)
		if err != nil {
			return fmt.Errorf("failed to open order event log: %w", err)
		}
		a.EventLog = eventLog
		eventLogger = eventLog.Tee(eventLogger)
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}
	a.CacheProvider = cacheProvider

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	secureCookies := handlers.SecureCookiesFromConfig(cfg)
	a.SessionManager = session.NewManager(sessionStore, secureCookies)

	guestIssuer, err := guest.NewIssuer(cfg.GuestTokenSecret, secureCookies)
	if err != nil {
		return fmt.Errorf("failed to initialize guest identity: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider:   cfg.EmailProvider,
		APIKey:     cfg.ResendAPIKey,
		From:       cfg.EmailFrom,
		HTTPClient: observability.NewHTTPClient(outboundHTTPTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize email provider: %w", err)
	}
	if emailProvider == nil {
		logger.Info("order emails disabled; EMAIL_PROVIDER is not set")
	}

	stripeClient := stripe.NewClient(cfg.StripeSecretKey, cfg.StripeCurrency, observability.NewHTTPClient(outboundHTTPTimeout))

	orderService := services.NewOrderService(orderStore, services.OrderServiceOptions{
		Catalog:     products,
		TaxRate:     &cfg.TaxRate,
		EventLogger: eventLogger,
		Logger:      logger.With("component", "order_service"),
	})
	orderEmailer := services.NewProviderOrderEmailSender(emailProvider, services.StoreInfo{
		Name: products.Store.Name,
		URL:  cfg.BaseURL,
	}, orderService)
	checkoutService := services.NewCheckoutService(orderService, products, stripeClient, logger.With("component", "checkout_service"))
	stripeService := services.NewStripeService(orderService, orderEmailer, logger.With("component", "stripe_service"))
	stripeRouter := handlers.NewStripeEventRouter(stripeService, logger.With("component", "stripe_router"))
	adminService := services.NewAdminService(orderService, orderEmailer, logger.With("component", "admin_service"))

	var authService *services.AuthService
	if cfg.AdminEnabled() {
		authService, err = services.NewAuthService(services.AuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			BaseURL:      cfg.BaseURL,
			AdminUsers:   cfg.AdminUsers(),
			HTTPClient:   observability.NewHTTPClient(outboundHTTPTimeout),
		}, logger.With("component", "auth_service"))
		if err != nil {
			return fmt.Errorf("failed to initialize auth service: %w", err)
		}
	} else {
		logger.Info("admin login disabled; GitHub OAuth is not configured")
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:          cfg,
		OrderStore:      orderStore,
		CacheProvider:   cacheProvider,
		StripeRouter:    stripeRouter,
		CheckoutService: checkoutService,
		OrderService:    orderService,
		AdminService:    adminService,
		AuthService:     authService,
		SessionManager:  a.SessionManager,
		GuestIssuer:     guestIssuer,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.Handlers = h

	return nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if path := strings.TrimSpace(cfg.CatalogPath); path != "" {
		return catalog.LoadFile(path)
	}
	return catalog.LoadDefault()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.OrderStore != nil {
		if err := a.OrderStore.Close(); err != nil {
			a.Logger.Warn("failed to close order store", "error", err)
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil {
			a.Logger.Warn("failed to close order event log", "error", err)
		}
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
