package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/storefront/internal/auth"
)

type Handler struct {
	service *Service
	timeout time.Duration
	logger  *slog.Logger
}

func NewHandler(service *Service, timeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
}

type checkoutResponse struct {
	OrderID   string    `json:"order_id"`
	Total     string    `json:"total"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type errorResponse struct {
	Error      string      `json:"error"`
	Kind       ErrorKind   `json:"kind"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: KindInvalidRequest})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	receipt, err := h.service.Checkout(ctx, Request{UserID: userID, ShippingAddress: req.ShippingAddress})
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:   receipt.OrderID,
		Total:     receipt.Total.StringFixed(2),
		Status:    string(receipt.Status),
		CreatedAt: receipt.CreatedAt,
	})
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	kind := Kind(err)
	resp := errorResponse{Kind: kind}

	var status int
	switch kind {
	case KindEmptyCart:
		status = http.StatusUnprocessableEntity
		resp.Error = ErrEmptyCart.Error()
	case KindInsufficientStock:
		status = http.StatusConflict
		resp.Error = ErrInsufficientStock.Error()
		resp.Shortfalls = Shortfalls(err)
	case KindStockConflict:
		status = http.StatusConflict
		resp.Error = "stock changed during checkout, refresh the cart and retry"
	case KindNotFound:
		status = http.StatusNotFound
		resp.Error = ErrCartNotFound.Error()
	case KindInvalidRequest:
		status = http.StatusBadRequest
		resp.Error = err.Error()
	default:
		status = http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		resp.Error = "checkout could not be completed"
	}

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
