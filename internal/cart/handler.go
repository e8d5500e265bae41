// Package cart exposes the cart mutations that happen outside checkout.
package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/storage"
)

type Handler struct {
	store  storage.CartStore
	logger *slog.Logger
}

func NewHandler(store storage.CartStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type cartItemView struct {
	ProductID     int64     `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Quantity      int       `json:"quantity"`
	UnitPrice     string    `json:"unit_price"`
	Subtotal      string    `json:"subtotal"`
	StockQuantity int       `json:"stock_quantity"`
	AddedAt       time.Time `json:"added_at"`
}

type cartView struct {
	CartID int64          `json:"cart_id"`
	Items  []cartItemView `json:"items"`
	Total  string         `json:"total"`
}

func newCartView(snap domain.CartSnapshot) cartView {
	view := cartView{
		CartID: snap.CartID,
		Items:  make([]cartItemView, 0, len(snap.Entries)),
		Total:  snap.Total().StringFixed(2),
	}
	for _, e := range snap.Entries {
		view.Items = append(view.Items, cartItemView{
			ProductID:     e.ProductID,
			ProductName:   e.ProductName,
			Quantity:      e.Quantity,
			UnitPrice:     e.UnitPrice.StringFixed(2),
			Subtotal:      e.Subtotal().StringFixed(2),
			StockQuantity: e.StockQuantity,
			AddedAt:       e.AddedAt,
		})
	}
	return view
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	snap, err := h.store.CartView(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		snap, err = domain.CartSnapshot{UserID: userID}, nil
	}
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, newCartView(snap))
}

type setItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleSetItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req setItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	if err := h.store.SetCartItem(r.Context(), userID, productID, req.Quantity); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to set cart item", "error", err, "user_id", userID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item set", "user_id", userID, "product_id", productID, "quantity", req.Quantity)
	h.HandleGet(w, r)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.store.RemoveCartItem(r.Context(), userID, productID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "item not in cart")
			return
		}
		h.logger.Error("failed to remove cart item", "error", err, "user_id", userID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item removed", "user_id", userID, "product_id", productID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
