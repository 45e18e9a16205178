package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/tenantcart/apiserver/internal/services"
)

// APIRouter registers every /api route on r.
func APIRouter(
	r chi.Router,
	accounts *services.AccountService,
	orders *services.OrderService,
	catalog *services.CatalogService,
	auth *Authenticator,
) {
	authHandler := NewAuthHandler(accounts, auth)
	tenantHandler := NewTenantHandler(accounts)
	orderHandler := NewOrderHandler(orders, auth)

	r.Get("/ping", Ping)
	r.Post("/signup", authHandler.Signup)
	r.Post("/login", authHandler.Login)
	r.Get("/products", Products(catalog))

	r.Route("/tenant/{tenantID}", func(r chi.Router) {
		r.Use(auth.RequireTenantAdmin)
		r.Get("/", tenantHandler.ListUsers)
		r.Get("/summary", tenantHandler.Summary)
		r.Patch("/users/{userID}", tenantHandler.UpdateUser)
	})

	r.With(auth.RequireAuth).Post("/buy", orderHandler.Buy)
	r.With(auth.RequireAuth).Get("/orders/{tenantID}/{userID}", orderHandler.ListOrders)
}
