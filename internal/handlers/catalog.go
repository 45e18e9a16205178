package handlers

import (
	"net/http"

	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/types"
)

type ProductsResponse struct {
	Success  bool            `json:"success"`
	Products []types.Product `json:"products"`
}

// Products returns the storefront catalog.
func Products(catalog *services.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ProductsResponse{Success: true, Products: catalog.Products()})
	}
}
