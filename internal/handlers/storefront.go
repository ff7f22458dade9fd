package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/norcalbattery/storefront/internal/catalog"
	"github.com/norcalbattery/storefront/internal/models"
)

type orderItemResponse struct {
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// orderResponse is the shopper-facing view of an order. Internal ids stay server side.
type orderResponse struct {
	OrderID         string                  `json:"order_id"`
	Status          models.OrderStatus      `json:"status"`
	Items           []orderItemResponse     `json:"items"`
	DeliveryMethod  models.DeliveryMethod   `json:"delivery_method"`
	Subtotal        decimal.Decimal         `json:"subtotal"`
	ShippingCost    decimal.Decimal         `json:"shipping_cost"`
	Total           decimal.Decimal         `json:"total"`
	ShippingAddress *models.ShippingAddress `json:"shipping_address,omitempty"`
	Shipment        *models.Shipment        `json:"shipment,omitempty"`
	TrackingURL     string                  `json:"tracking_url,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

func newOrderResponse(order *models.Order) *orderResponse {
	if order == nil {
		return nil
	}
	return &orderResponse{
		OrderID:         order.OrderID,
		Status:          order.Status,
		Items:           newOrderItemResponses(order.Items),
		DeliveryMethod:  order.DeliveryMethod,
		Subtotal:        order.Subtotal(),
		ShippingCost:    order.ShippingCost,
		Total:           order.Total,
		ShippingAddress: order.ShippingAddress,
		Shipment:        order.Shipment,
		TrackingURL:     order.Shipment.TrackingURL(),
		CreatedAt:       order.CreatedAt,
	}
}

func newOrderItemResponses(items []models.OrderItem) []orderItemResponse {
	out := make([]orderItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
		})
	}
	return out
}

type productsResponse struct {
	StoreName   string            `json:"store_name"`
	Currency    string            `json:"currency"`
	MaxQuantity int               `json:"max_quantity"`
	Products    []catalog.Product `json:"products"`
}

func (h *Handlers) Products(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := productsResponse{
		Currency: h.config.StripeCurrency,
		Products: h.checkoutService.Products(),
	}
	if c := h.checkoutService.Catalog(); c != nil {
		response.StoreName = c.Store.Name
		response.MaxQuantity = c.Store.MaxQuantity
	}
	if response.Products == nil {
		response.Products = []catalog.Product{}
	}

	writeJSON(ctx, w, http.StatusOK, response)
}

type cartRequest struct {
	Items          []catalog.CartLine `json:"items"`
	DeliveryMethod string             `json:"delivery_method"`
}

type quoteResponse struct {
	Items          []orderItemResponse   `json:"items"`
	DeliveryMethod models.DeliveryMethod `json:"delivery_method"`
	Subtotal       decimal.Decimal       `json:"subtotal"`
	Shipping       decimal.Decimal       `json:"shipping"`
	EstimatedTax   decimal.Decimal       `json:"estimated_tax"`
	Total          decimal.Decimal       `json:"total"`
}

// CartQuote prices a cart from the catalog without creating anything.
func (h *Handlers) CartQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req cartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.checkoutService.Quote(req.Items, models.DeliveryMethod(req.DeliveryMethod))
	if err != nil {
		h.writeServiceError(w, r, err, "cart quote")
		return
	}

	writeJSON(ctx, w, http.StatusOK, quoteResponse{
		Items:          newOrderItemResponses(quote.Items),
		DeliveryMethod: quote.DeliveryMethod,
		Subtotal:       quote.Subtotal,
		Shipping:       quote.Shipping,
		EstimatedTax:   quote.Tax,
		Total:          quote.Total,
	})
}

// GuestID returns the caller's guest identifier, issuing one on first visit.
func (h *Handlers) GuestID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	guestID, created, err := h.guestIssuer.Ensure(w, r)
	if err != nil {
		h.loggerFromContext(ctx).Error("failed to issue guest id", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "internal error")
		return
	}
	if created {
		h.loggerFromContext(ctx).Debug("issued guest id", "guest_id", guestID)
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{"guest_id": guestID})
}

// Orders lists the caller's confirmed and cancelled orders, newest first.
func (h *Handlers) Orders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	guestID, err := h.guestIssuer.FromRequest(r)
	if err != nil {
		writeJSON(ctx, w, http.StatusOK, map[string]any{"orders": []*orderResponse{}})
		return
	}

	orders, err := h.orderService.GetOrdersForUser(ctx, guestID)
	if err != nil {
		h.writeServiceError(w, r, err, "list orders")
		return
	}

	response := make([]*orderResponse, 0, len(orders))
	for _, order := range orders {
		response = append(response, newOrderResponse(order))
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"orders": response})
}
