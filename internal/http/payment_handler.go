package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/KalanaDissanayke/Emporium-API/internal/fulfillment"
)

type PaymentProcessor interface {
	HandleNotification(ctx context.Context, n fulfillment.Notification) (fulfillment.Result, error)
}

type PaymentHandler struct {
	processor PaymentProcessor
	logger    *log.Logger
}

func NewPaymentHandler(processor PaymentProcessor, logger *log.Logger) *PaymentHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &PaymentHandler{processor: processor, logger: logger}
}

// Notify receives the gateway's server-to-server callback. PayHere posts
// form-encoded fields; order_id carries the cart id and payment_id the
// gateway transaction id.
func (h *PaymentHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	n := fulfillment.Notification{
		MerchantID:    r.PostFormValue("merchant_id"),
		TransactionID: r.PostFormValue("payment_id"),
		CartID:        r.PostFormValue("order_id"),
		Amount:        r.PostFormValue("payhere_amount"),
		Currency:      r.PostFormValue("payhere_currency"),
		StatusCode:    r.PostFormValue("status_code"),
		Signature:     r.PostFormValue("md5sig"),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.processor.HandleNotification(ctx, n)
	if err != nil {
		h.logger.Printf("payment notification rejected (txn=%s cart=%s): %v", n.TransactionID, n.CartID, err)
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"order":            res.Order,
		"alreadyProcessed": res.AlreadyProcessed,
	})
}
