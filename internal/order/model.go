package order

import "time"

// Currencies the gateway settles in.
const (
	CurrencyLKR = "LKR"
	CurrencyUSD = "USD"
)

func ValidCurrency(c string) bool {
	return c == CurrencyLKR || c == CurrencyUSD
}

// Order is the permanent record of a paid cart. TransactionID is the
// gateway's payment id and deduplicates retried notifications. Orders are
// never updated or deleted.
type Order struct {
	ID            string    `json:"orderId"`
	TransactionID string    `json:"transactionId"`
	CartID        string    `json:"cartId"`
	UserID        string    `json:"userId"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"createdAt"`
}
