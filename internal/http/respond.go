package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KalanaDissanayke/Emporium-API/internal/cart"
	"github.com/KalanaDissanayke/Emporium-API/internal/fulfillment"
	"github.com/KalanaDissanayke/Emporium-API/internal/order"
	"github.com/KalanaDissanayke/Emporium-API/internal/stock"
)

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// writeDomainError maps the core error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, stock.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, cart.ErrConflict),
		errors.Is(err, cart.ErrInvalidInput),
		errors.Is(err, stock.ErrInsufficientStock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fulfillment.ErrPaymentRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
