package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KalanaDissanayke/Emporium-API/internal/auth"
	"github.com/KalanaDissanayke/Emporium-API/internal/cart"
)

// CartService is the slice of the cart engine the HTTP layer needs.
type CartService interface {
	Create(ctx context.Context, actor auth.Actor, items []cart.ItemInput) (*cart.Cart, error)
	Update(ctx context.Context, actor auth.Actor, cartID string, items []cart.ItemInput) (*cart.Cart, error)
	Delete(ctx context.Context, actor auth.Actor, cartID string) error
	Get(ctx context.Context, actor auth.Actor, cartID string) (*cart.Cart, error)
	List(ctx context.Context, actor auth.Actor) ([]cart.Cart, error)
}

type CartHandler struct {
	engine CartService
}

func NewCartHandler(engine CartService) *CartHandler {
	return &CartHandler{engine: engine}
}

type cartRequest struct {
	Items []cart.ItemInput `json:"items"`
}

func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var body cartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.engine.Create(ctx, actorFrom(r.Context()), body.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.engine.Get(ctx, actorFrom(r.Context()), cartID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (h *CartHandler) ListCarts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	carts, err := h.engine.List(ctx, actorFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if carts == nil {
		carts = []cart.Cart{}
	}
	writeData(w, http.StatusOK, carts)
}

func (h *CartHandler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	var body cartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.engine.Update(ctx, actorFrom(r.Context()), cartID, body.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.engine.Delete(ctx, actorFrom(r.Context()), cartID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, struct{}{})
}
