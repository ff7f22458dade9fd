package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/norcalbattery/storefront/internal/models"
)

func adminRequest(method, target, id, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return mux.SetURLVars(req, map[string]string{"id": id})
}

func TestAdminOrders(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createOrder(t, "cs_admin_1", "guest-1")
	env.createOrder(t, "cs_admin_2", "guest-2")

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{query: "", wantStatus: http.StatusOK, wantCount: 2},
		{query: "?limit=1", wantStatus: http.StatusOK, wantCount: 1},
		{query: "?limit=0", wantStatus: http.StatusBadRequest},
		{query: "?limit=abc", wantStatus: http.StatusBadRequest},
		{query: "?limit=501", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		env.handlers.AdminOrders(rec, httptest.NewRequest(http.MethodGet, "/admin/orders"+tt.query, nil))
		if rec.Code != tt.wantStatus {
			t.Fatalf("%q: expected status %d, got %d", tt.query, tt.wantStatus, rec.Code)
		}
		if tt.wantStatus != http.StatusOK {
			continue
		}
		body := decodeBody[map[string][]map[string]any](t, rec)
		if len(body["orders"]) != tt.wantCount {
			t.Fatalf("%q: expected %d orders, got %d", tt.query, tt.wantCount, len(body["orders"]))
		}
		if _, ok := body["orders"][0]["estimated_tax"]; !ok {
			t.Fatalf("%q: expected estimated tax in admin view", tt.query)
		}
	}
}

func TestAdminOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	order := env.createOrder(t, "cs_admin_detail", "guest-1")

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "found", id: order.PrivateID.String(), wantStatus: http.StatusOK},
		{name: "missing", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "malformed", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		env.handlers.AdminOrder(rec, adminRequest(http.MethodGet, "/admin/orders/"+tt.id, tt.id, ""))
		if rec.Code != tt.wantStatus {
			t.Fatalf("%s: expected status %d, got %d", tt.name, tt.wantStatus, rec.Code)
		}
	}
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t)
	order := env.createOrder(t, "cs_admin_status", "guest-1")
	id := order.PrivateID.String()

	update := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		env.handlers.AdminUpdateOrderStatus(rec, adminRequest(http.MethodPost, "/admin/orders/"+id+"/status", id, body))
		return rec
	}

	if rec := update(`{"status":"shipped"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected unpaid order to conflict, got %d", rec.Code)
	}
	if _, err := env.orders.ReconcileAfterPaymentReturn(ctx, "cs_admin_status"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		body       string
		wantStatus int
	}{
		{body: `{"status":"paid"}`, wantStatus: http.StatusBadRequest},
		{body: `{"status":"cancelled"}`, wantStatus: http.StatusBadRequest},
		{body: `{"status":"refunded"}`, wantStatus: http.StatusBadRequest},
		{body: `{"state":"shipped"}`, wantStatus: http.StatusBadRequest},
		{body: `{"status":"shipped","carrier":"UPS"}`, wantStatus: http.StatusBadRequest},
		{body: `{"status":"delivered","tracking_number":"1Z999AA10123456784"}`, wantStatus: http.StatusBadRequest},
		{body: `{"status":"Shipped","carrier":"ups","tracking_number":"1Z999AA10123456784"}`, wantStatus: http.StatusOK},
		{body: `{"status":"delivered"}`, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		if rec := update(tt.body); rec.Code != tt.wantStatus {
			t.Fatalf("%s: expected status %d, got %d: %s", tt.body, tt.wantStatus, rec.Code, rec.Body.String())
		}
	}

	stored, err := env.orders.GetOrder(ctx, order.PrivateID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != models.StatusDelivered {
		t.Fatalf("expected delivered, got %s", stored.Status)
	}
	if stored.Shipment == nil || stored.Shipment.Carrier != models.CarrierUPS {
		t.Fatalf("expected UPS shipment to be recorded, got %+v", stored.Shipment)
	}

	rec := httptest.NewRecorder()
	env.handlers.AdminOrder(rec, adminRequest(http.MethodGet, "/admin/orders/"+id, id, ""))
	body := decodeBody[map[string]any](t, rec)
	if body["tracking_url"] != "https://www.ups.com/track?tracknum=1Z999AA10123456784" {
		t.Fatalf("expected tracking url in admin view, got %v", body["tracking_url"])
	}
}

func TestAdminDeleteOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	order := env.createOrder(t, "cs_admin_delete", "guest-1")
	id := order.PrivateID.String()

	rec := httptest.NewRecorder()
	env.handlers.AdminDeleteOrder(rec, adminRequest(http.MethodDelete, "/admin/orders/"+id, id, ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handlers.AdminDeleteOrder(rec, adminRequest(http.MethodDelete, "/admin/orders/"+id, id, ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
