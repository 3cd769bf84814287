package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB matches the methods from *pgxpool.Pool that the ledger uses.
// This allows us to mock the database in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresLedger serializes per-product mutations with row locks
// (SELECT ... FOR UPDATE), so two reservations for the same product never
// interleave while distinct products proceed independently.
type PostgresLedger struct {
	pool DB
}

func NewPostgresLedger(pool DB) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) GetProduct(ctx context.Context, productID string) (Product, error) {
	var p Product
	row := l.pool.QueryRow(ctx, `
		SELECT id, name, unit_price, quantity, unit_of_measure, created_at, updated_at
		FROM products
		WHERE id=$1
	`, productID)
	if err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Quantity, &p.UnitOfMeasure, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (l *PostgresLedger) CheckAvailability(ctx context.Context, productID string, requested int) (int, error) {
	var quantity int
	row := l.pool.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1`, productID)
	if err := row.Scan(&quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("select quantity: %w", err)
	}
	return quantity - requested, nil
}

func (l *PostgresLedger) Reserve(ctx context.Context, productID string, qty int) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var quantity int
	err = tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock product: %w", err)
	}
	if quantity < qty {
		return fmt.Errorf("%w: product %s has %d, requested %d", ErrInsufficientStock, productID, quantity, qty)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE products SET quantity = quantity - $2, updated_at=NOW() WHERE id=$1
	`, productID, qty); err != nil {
		return fmt.Errorf("decrement quantity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Release(ctx context.Context, productID string, qty int) error {
	ct, err := l.pool.Exec(ctx, `
		UPDATE products SET quantity = quantity + $2, updated_at=NOW() WHERE id=$1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("increment quantity: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) AdjustAll(ctx context.Context, deltas []Line) ([]DepletedLine, error) {
	applied := make([]Line, 0, len(deltas))
	for _, d := range deltas {
		if d.Quantity != 0 {
			applied = append(applied, d)
		}
	}
	if len(applied) == 0 {
		return nil, nil
	}

	// Lock rows in a stable order so two concurrent adjustments cannot
	// deadlock on each other.
	sort.Slice(applied, func(i, j int) bool { return applied[i].ProductID < applied[j].ProductID })

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var depleted []DepletedLine
	for _, d := range applied {
		var quantity int
		err := tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1 FOR UPDATE`, d.ProductID).Scan(&quantity)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("lock product: %w", err)
		}
		if quantity-d.Quantity < 0 {
			depleted = append(depleted, DepletedLine{
				ProductID: d.ProductID,
				Requested: d.Quantity,
				Available: quantity,
			})
		}
	}

	if len(depleted) > 0 {
		return depleted, nil // rollback via defer
	}

	for _, d := range applied {
		if _, err := tx.Exec(ctx, `
			UPDATE products SET quantity = quantity - $2, updated_at=NOW() WHERE id=$1
		`, d.ProductID, d.Quantity); err != nil {
			return nil, fmt.Errorf("adjust quantity: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return nil, nil
}
