package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/norcalbattery/storefront/internal/config"
	"github.com/norcalbattery/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.Use(h.MetricsContext)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	notFound := jsonStatusHandler(http.StatusNotFound, "not found")
	methodNotAllowed := jsonStatusHandler(http.StatusMethodNotAllowed, "method not allowed")
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	// Subrouters answer method mismatches themselves; otherwise the parent's not-found handler wins.
	api := r.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = methodNotAllowed
	api.Use(h.RequireSameOrigin)
	api.HandleFunc("/products", h.Products).Methods("GET").Name("api.products")
	api.HandleFunc("/cart/quote", h.CartQuote).Methods("POST").Name("api.cart.quote")
	api.HandleFunc("/guest-id", h.GuestID).Methods("GET").Name("api.guest_id")
	api.Handle("/checkout/sessions", h.RateLimitCheckout(http.HandlerFunc(h.CreateCheckoutSession))).Methods("POST").Name("api.checkout.create")
	api.HandleFunc("/checkout/verify", h.VerifyCheckoutSession).Methods("GET").Name("api.checkout.verify")
	api.HandleFunc("/orders", h.Orders).Methods("GET").Name("api.orders")

	r.HandleFunc("/auth/github/login", h.GitHubLogin).Methods("GET").Name("auth.github.login")
	r.HandleFunc("/auth/github/callback", h.GitHubCallback).Methods("GET").Name("auth.github.callback")
	r.HandleFunc("/auth/logout", h.Logout).Methods("GET").Name("auth.logout")

	// Protected admin routes - require authentication
	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.MethodNotAllowedHandler = methodNotAllowed
	adminRouter.Use(h.SessionMiddleware)
	adminRouter.Use(h.RequireAuth)
	adminRouter.Use(h.RequireSameOrigin)
	adminRouter.HandleFunc("/orders", h.AdminOrders).Methods("GET").Name("admin.orders")
	adminRouter.HandleFunc("/orders/{id}", h.AdminOrder).Methods("GET").Name("admin.orders.get")
	adminRouter.HandleFunc("/orders/{id}/status", h.AdminUpdateOrderStatus).Methods("POST").Name("admin.orders.status")
	adminRouter.HandleFunc("/orders/{id}", h.AdminDeleteOrder).Methods("DELETE").Name("admin.orders.delete")

	return r
}

func jsonStatusHandler(status int, message string) http.Handler {
	body := []byte(`{"error":"` + message + `"}` + "\n")
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}
