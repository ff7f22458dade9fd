package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/norcalbattery/storefront/internal/db"
	"github.com/norcalbattery/storefront/internal/logging"
	"github.com/norcalbattery/storefront/internal/models"
	"github.com/norcalbattery/storefront/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(ctx, nil).Error("failed to encode response", "error", err, "status", status)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, errorResponse{Error: message})
}

// writeServiceError maps service errors onto status codes. Backend details never reach the client.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	switch {
	case errors.Is(err, services.ErrInvalidOrderInput), errors.Is(err, services.ErrCatalogItem):
		logger.Info(action+" rejected", "error", err)
		writeError(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAdminStatusNotAllowed):
		writeError(ctx, w, http.StatusBadRequest, "status must be shipped or delivered")
	case errors.Is(err, services.ErrAdminOrderStatusConflict), errors.Is(err, models.ErrInvalidStatusTransition):
		writeError(ctx, w, http.StatusConflict, "order cannot move to that status")
	case errors.Is(err, db.ErrOrderNotFound):
		writeError(ctx, w, http.StatusNotFound, "order not found")
	case errors.Is(err, db.ErrDuplicateSession):
		logger.Error(action+" failed", "error", err)
		writeError(ctx, w, http.StatusConflict, "order already exists")
	case errors.Is(err, services.ErrPaymentProcessor):
		logger.Error(action+" failed", "error", err)
		writeError(ctx, w, http.StatusBadGateway, "payment processor unavailable")
	default:
		logger.Error(action+" failed", "error", err)
		writeError(ctx, w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: unexpected trailing data")
	}
	return nil
}

func requestOrigin(r *http.Request, baseURL string) string {
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		return baseURL
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
		return strings.TrimRight(origin, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
