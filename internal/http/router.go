package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(carts *CartHandler, orders *OrderHandler, payments *PaymentHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", healthHandler)

	// Gateway callback carries no actor; it authenticates by signature.
	r.Post("/api/v1/orders/payhere/notify", payments.Notify)

	r.Group(func(r chi.Router) {
		r.Use(RequireActor)

		r.Route("/api/v1/carts", func(r chi.Router) {
			r.Post("/", carts.CreateCart)
			r.Get("/", carts.ListCarts)
			r.Get("/{cartId}", carts.GetCart)
			r.Put("/{cartId}", carts.UpdateCart)
			r.Delete("/{cartId}", carts.DeleteCart)
		})

		r.Route("/api/v1/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Get("/{orderId}", orders.GetOrder)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "emporium-api"})
}
