package cart

import "time"

// ItemInput is what the caller supplies for each requested line.
type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// LineItem is a priced, stock-checked cart line. Subtotal and RemainingQty
// are computed against the ledger when the cart is created or updated.
type LineItem struct {
	ProductID    string  `json:"productId"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	Subtotal     float64 `json:"subTotal"`
	RemainingQty int     `json:"remainingQty"`
}

type Cart struct {
	ID        string     `json:"cartId"`
	UserID    string     `json:"userId"`
	Items     []LineItem `json:"items"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Total is the sum of line subtotals.
func (c *Cart) Total() float64 {
	var total float64
	for _, it := range c.Items {
		total += it.Subtotal
	}
	return total
}
