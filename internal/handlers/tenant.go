package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/types"
)

// TenantHandler serves the tenant dashboard endpoints.
type TenantHandler struct {
	accounts *services.AccountService
}

func NewTenantHandler(accounts *services.AccountService) *TenantHandler {
	return &TenantHandler{accounts: accounts}
}

type TenantUsersResponse struct {
	Success bool            `json:"success"`
	Users   []types.Account `json:"users"`
}

type UpdateUserRequest struct {
	Data map[string]any `json:"data"`
}

type UpdateUserResponse struct {
	Success bool     `json:"success"`
	User    UserView `json:"user"`
}

type TenantSummaryResponse struct {
	Success bool                `json:"success"`
	Summary types.TenantSummary `json:"summary"`
}

func (h *TenantHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListTenantAccounts(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeServiceError(w, r, "list tenant accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, TenantUsersResponse{Success: true, Users: users})
}

func (h *TenantHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.accounts.TenantSummary(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeServiceError(w, r, "tenant summary", err)
		return
	}
	writeJSON(w, http.StatusOK, TenantSummaryResponse{Success: true, Summary: summary})
}

// UpdateUser merges the request data into a tenant member's attributes.
func (h *TenantHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.UpdateAttributes(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"), req.Data)
	if err != nil {
		writeServiceError(w, r, "update attributes", err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateUserResponse{
		Success: true,
		User: UserView{
			TenantID: account.TenantID,
			UserID:   account.UserID,
			Data:     account.Data,
		},
	})
}
