package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate means an order already exists for the transaction or the
	// cart. The caller treats this as a replayed notification, not a failure.
	ErrDuplicate = errors.New("order already exists")
	// ErrCartNotCompletable means the referenced cart was not IN_PROGRESS at
	// commit time: either it is gone or a concurrent notification won.
	ErrCartNotCompletable = errors.New("cart cannot be completed")
)

const uniqueViolation = "23505"

type Repository interface {
	// CreateFromCart inserts the order and flips its cart from IN_PROGRESS
	// to COMPLETED in one transaction. Either both happen or neither does.
	CreateFromCart(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	GetByTransactionID(ctx context.Context, txnID string) (*Order, error)
	GetByCartID(ctx context.Context, cartID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}

type repo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repo{db: db}
}

func (r *repo) CreateFromCart(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE carts SET status = $2, updated_at = NOW()
         WHERE id = $1 AND status = $3`,
		o.CartID, "COMPLETED", "IN_PROGRESS",
	)
	if err != nil {
		return fmt.Errorf("complete cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrCartNotCompletable
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, transaction_id, cart_id, user_id, amount, currency, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.TransactionID, o.CartID, o.UserID, o.Amount, o.Currency, o.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repo) GetByID(ctx context.Context, orderID string) (*Order, error) {
	return r.get(ctx, `WHERE id = $1`, orderID)
}

func (r *repo) GetByTransactionID(ctx context.Context, txnID string) (*Order, error) {
	return r.get(ctx, `WHERE transaction_id = $1`, txnID)
}

func (r *repo) GetByCartID(ctx context.Context, cartID string) (*Order, error) {
	return r.get(ctx, `WHERE cart_id = $1`, cartID)
}

func (r *repo) get(ctx context.Context, where string, arg any) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, transaction_id, cart_id, user_id, amount, currency, created_at
         FROM orders `+where, arg,
	).Scan(&o.ID, &o.TransactionID, &o.CartID, &o.UserID, &o.Amount, &o.Currency, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &o, nil
}

func (r *repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx,
		`SELECT id, transaction_id, cart_id, user_id, amount, currency, created_at
         FROM orders WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *repo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx,
		`SELECT id, transaction_id, cart_id, user_id, amount, currency, created_at
         FROM orders ORDER BY created_at`)
}

func (r *repo) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.TransactionID, &o.CartID, &o.UserID, &o.Amount, &o.Currency, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return orders, nil
}
