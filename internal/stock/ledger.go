package stock

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Ledger is the single mutation point for product stock. All quantity
// changes for one product are serialized; quantities never go negative.
type Ledger interface {
	// GetProduct returns the catalog row, including current quantity and
	// unit price.
	GetProduct(ctx context.Context, productID string) (Product, error)

	// CheckAvailability returns current quantity minus requested, without
	// mutating anything. A negative result means the request cannot be
	// satisfied right now.
	CheckAvailability(ctx context.Context, productID string, requested int) (int, error)

	// Reserve atomically decrements the stored quantity. It fails with
	// ErrInsufficientStock, mutating nothing, if the decrement would drive
	// the quantity below zero.
	Reserve(ctx context.Context, productID string, qty int) error

	// Release atomically increments the stored quantity.
	Release(ctx context.Context, productID string, qty int) error

	// AdjustAll applies a set of net reservation deltas in one atomic step.
	// A positive delta reserves, a negative delta releases. If any product
	// would end up negative, nothing is applied and the shortfalls are
	// returned with a nil error.
	AdjustAll(ctx context.Context, deltas []Line) ([]DepletedLine, error)
}
