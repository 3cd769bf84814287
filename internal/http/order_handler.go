package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KalanaDissanayke/Emporium-API/internal/cart"
	"github.com/KalanaDissanayke/Emporium-API/internal/order"
)

type OrderHandler struct {
	repo order.Repository
}

func NewOrderHandler(repo order.Repository) *OrderHandler {
	return &OrderHandler{repo: repo}
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.repo.GetByID(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !actorFrom(r.Context()).CanAccess(o.UserID) {
		writeError(w, http.StatusUnauthorized, cart.ErrUnauthorized.Error())
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	actor := actorFrom(r.Context())

	var (
		orders []order.Order
		err    error
	)
	if actor.IsAdmin() {
		orders, err = h.repo.ListAll(ctx)
	} else {
		orders, err = h.repo.ListByUser(ctx, actor.UserID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeData(w, http.StatusOK, orders)
}
