package events

import "time"

const (
	OrderCompletedEventName    = "OrderCompleted"
	OrderCompletedEventVersion = 1

	CartReleasedEventName    = "CartReleased"
	CartReleasedEventVersion = 1
)

type OrderCompletedPayload struct {
	OrderID       string    `json:"orderId"`
	CartID        string    `json:"cartId"`
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

type CartReleasedPayload struct {
	CartID      string     `json:"cartId"`
	UserID      string     `json:"userId"`
	Items       []CartItem `json:"items"`
	TotalAmount float64    `json:"totalAmount"`
	Timestamp   time.Time  `json:"timestamp"`
}

type CartItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}
