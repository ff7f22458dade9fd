package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/norcalbattery/storefront/internal/guest"
	"github.com/norcalbattery/storefront/internal/models"
)

func newCheckoutRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/sessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51234"
	return req
}

func TestCreateCheckoutSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handlers.CreateCheckoutSession(rec, newCheckoutRequest(`{"items":[{"product_id":"eco-rider","quantity":2}],"delivery_method":"delivery"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	body := decodeBody[checkoutResponse](t, rec)
	if body.SessionID == "" || !strings.HasPrefix(body.URL, "https://checkout.stripe.com/") {
		t.Fatalf("unexpected checkout response: %+v", body)
	}
	if body.Order == nil || body.Order.Status != models.StatusPending || body.Order.Total.String() != "659.98" {
		t.Fatalf("unexpected order in response: %+v", body.Order)
	}

	var guestCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == guest.CookieName {
			guestCookie = c
		}
	}
	if guestCookie == nil {
		t.Fatal("expected checkout to issue a guest cookie")
	}
	guestID, err := env.issuer.Parse(guestCookie.Value)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := env.orders.GetOrderBySessionID(ctx, body.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.UserID != guestID {
		t.Fatalf("expected order owned by %s, got %s", guestID, stored.UserID)
	}
}

func TestCreateCheckoutSession_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		createErr  error
		wantStatus int
	}{
		{name: "unknown product", body: `{"items":[{"product_id":"nope","quantity":1}]}`, wantStatus: http.StatusBadRequest},
		{name: "zero quantity", body: `{"items":[{"product_id":"eco-rider","quantity":0}]}`, wantStatus: http.StatusBadRequest},
		{name: "client supplied shipping", body: `{"items":[{"product_id":"eco-rider","quantity":1}],"shipping_cost":"0"}`, wantStatus: http.StatusBadRequest},
		{name: "processor down", body: `{"items":[{"product_id":"eco-rider","quantity":1}]}`, createErr: errors.New("stripe: 503"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.processor.createErr = tt.createErr

			rec := httptest.NewRecorder()
			env.handlers.CreateCheckoutSession(rec, newCheckoutRequest(tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if strings.Contains(rec.Body.String(), "stripe: 503") {
				t.Fatalf("expected processor details to stay private, got %s", rec.Body.String())
			}
		})
	}
}

func TestRateLimitCheckout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := env.handlers.RateLimitCheckout(next)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newCheckoutRequest(`{}`))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected status %d, got %d", i, http.StatusNoContent, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newCheckoutRequest(`{}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	other := newCheckoutRequest(`{}`)
	other.RemoteAddr = "198.51.100.9:40000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected other clients to be unaffected, got %d", rec.Code)
	}
}

func TestVerifyCheckoutSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)
	env.createOrder(t, "cs_verify_paid", "guest-verify")
	if _, err := env.orders.ReconcileAfterPaymentReturn(ctx, "cs_verify_paid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.createOrder(t, "cs_verify_pending", "guest-verify")

	tests := []struct {
		name          string
		query         string
		wantStatus    int
		wantConfirmed bool
		wantPending   bool
	}{
		{name: "paid", query: "?session_id=cs_verify_paid", wantStatus: http.StatusOK, wantConfirmed: true},
		{name: "pending", query: "?session_id=cs_verify_pending", wantStatus: http.StatusOK, wantPending: true},
		{name: "not yet written", query: "?session_id=cs_verify_unknown", wantStatus: http.StatusOK, wantPending: true},
		{name: "missing session id", query: "", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.handlers.VerifyCheckoutSession(rec, httptest.NewRequest(http.MethodGet, "/api/checkout/verify"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decodeBody[verifyResponse](t, rec)
			if body.Confirmed != tt.wantConfirmed || body.Pending != tt.wantPending {
				t.Fatalf("expected confirmed=%v pending=%v, got %+v", tt.wantConfirmed, tt.wantPending, body)
			}
		})
	}

	order, err := env.orders.GetOrderBySessionID(ctx, "cs_verify_pending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != models.StatusPending {
		t.Fatalf("expected verify to leave the order pending, got %s", order.Status)
	}
}
