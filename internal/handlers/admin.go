package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/models"
	"github.com/norcalbattery/storefront/internal/session"
)

const maxAdminOrderLimit = 500

type adminOrderResponse struct {
	*models.Order
	Subtotal     decimal.Decimal `json:"subtotal"`
	EstimatedTax decimal.Decimal `json:"estimated_tax"`
	TrackingURL  string          `json:"tracking_url,omitempty"`
}

func (h *Handlers) newAdminOrderResponse(order *models.Order) adminOrderResponse {
	return adminOrderResponse{
		Order:        order,
		Subtotal:     order.Subtotal(),
		EstimatedTax: h.orderService.CalculateTax(order),
		TrackingURL:  order.Shipment.TrackingURL(),
	}
}

func (h *Handlers) AdminOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxAdminOrderLimit {
			writeError(ctx, w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	orders, err := h.adminService.GetRecentOrders(ctx, limit)
	if err != nil {
		h.writeServiceError(w, r, err, "list admin orders")
		return
	}

	response := make([]adminOrderResponse, 0, len(orders))
	for _, order := range orders {
		response = append(response, h.newAdminOrderResponse(order))
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"orders": response})
}

func (h *Handlers) AdminOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	privateID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	order, err := h.adminService.GetOrder(ctx, privateID)
	if err != nil {
		h.writeServiceError(w, r, err, "get admin order")
		return
	}
	writeJSON(ctx, w, http.StatusOK, h.newAdminOrderResponse(order))
}

type statusRequest struct {
	Status         string `json:"status"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handlers) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	privateID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	status := models.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	shipment, err := models.NewShipment(req.Carrier, req.TrackingNumber)
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	var order *models.Order
	switch {
	case shipment == nil:
		order, err = h.adminService.UpdateStatus(ctx, privateID, status)
	case status == models.StatusShipped:
		order, err = h.adminService.ShipOrder(ctx, privateID, shipment)
	default:
		writeError(ctx, w, http.StatusBadRequest, "tracking details are only accepted with status shipped")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err, "update order status")
		return
	}

	logger.Info("admin updated order status", "order_id", order.OrderID, "status", order.Status, "admin", adminLogin(r))
	writeJSON(ctx, w, http.StatusOK, h.newAdminOrderResponse(order))
}

func (h *Handlers) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	privateID, ok := orderIDFromPath(w, r)
	if !ok {
		return
	}

	deleted, err := h.adminService.DeleteOrder(ctx, privateID)
	if err != nil {
		h.writeServiceError(w, r, err, "delete order")
		return
	}
	if !deleted {
		writeError(ctx, w, http.StatusNotFound, "order not found")
		return
	}

	h.loggerFromContext(ctx).Info("admin deleted order", "private_id", privateID, "admin", adminLogin(r))
	w.WriteHeader(http.StatusNoContent)
}

func orderIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	privateID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, false
	}
	return privateID, true
}

func adminLogin(r *http.Request) string {
	if sess := session.GetSessionFromContext(r.Context()); sess != nil {
		return sess.GitHubLogin
	}
	return ""
}
