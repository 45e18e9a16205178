package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/types"
)

const headerIdempotencyKey = "Idempotency-Key"

// OrderHandler serves purchase and order history endpoints.
type OrderHandler struct {
	orders *services.OrderService
	auth   *Authenticator
}

func NewOrderHandler(orders *services.OrderService, auth *Authenticator) *OrderHandler {
	return &OrderHandler{orders: orders, auth: auth}
}

type BuyRequest struct {
	TenantID string       `json:"tenantID"`
	UserID   string       `json:"userID"`
	Product  *types.Order `json:"product"`
}

type OrdersResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Orders  []types.Order `json:"orders"`
}

// Buy appends the product to the user's orders.
func (h *OrderHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.UserID) == "" || req.Product == nil {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if !h.auth.allowAccount(r, req.TenantID, req.UserID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	orders, err := h.orders.RecordPurchase(r.Context(), services.PurchaseInput{
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		Product:        *req.Product,
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		writeServiceError(w, r, "record purchase", err)
		return
	}

	writeJSON(w, http.StatusOK, OrdersResponse{Success: true, Message: "Product bought!", Orders: orders})
}

// ListOrders returns the order history of one user.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	userID := chi.URLParam(r, "userID")
	if !h.auth.allowAccount(r, tenantID, userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), tenantID, userID)
	if err != nil {
		writeServiceError(w, r, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, OrdersResponse{Success: true, Orders: orders})
}
