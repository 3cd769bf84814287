package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("cart not found")

type Repository interface {
	Insert(ctx context.Context, c *Cart) error
	GetByID(ctx context.Context, cartID string) (*Cart, error)
	// FindActive returns the user's IN_PROGRESS cart, or nil if there is none.
	FindActive(ctx context.Context, userID string) (*Cart, error)
	ReplaceItems(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, cartID string) error
	ListByUser(ctx context.Context, userID string) ([]Cart, error)
	ListAll(ctx context.Context) ([]Cart, error)
}

type repo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, c *Cart) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO carts (id, user_id, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}

	if err := insertItems(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repo) GetByID(ctx context.Context, cartID string) (*Cart, error) {
	var c Cart
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, created_at, updated_at FROM carts WHERE id = $1`,
		cartID,
	).Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	if err := r.loadItems(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) FindActive(ctx context.Context, userID string) (*Cart, error) {
	var c Cart
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, created_at, updated_at
         FROM carts WHERE user_id = $1 AND status = $2
         ORDER BY created_at LIMIT 1`,
		userID, StatusInProgress,
	).Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select active cart: %w", err)
	}

	if err := r.loadItems(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) ReplaceItems(ctx context.Context, c *Cart) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.ID); err != nil {
		return fmt.Errorf("delete cart_items: %w", err)
	}
	if err := insertItems(ctx, tx, c); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE carts SET updated_at = $2 WHERE id = $1`, c.ID, c.UpdatedAt,
	); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, cartID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) ListByUser(ctx context.Context, userID string) ([]Cart, error) {
	return r.list(ctx,
		`SELECT id, user_id, status, created_at, updated_at
         FROM carts WHERE user_id = $1 AND status = $2
         ORDER BY created_at`,
		userID, StatusInProgress,
	)
}

func (r *repo) ListAll(ctx context.Context) ([]Cart, error) {
	return r.list(ctx,
		`SELECT id, user_id, status, created_at, updated_at FROM carts ORDER BY created_at`,
	)
}

func (r *repo) list(ctx context.Context, query string, args ...any) ([]Cart, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select carts: %w", err)
	}
	defer rows.Close()

	var carts []Cart
	for rows.Next() {
		var c Cart
		if err := rows.Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cart: %w", err)
		}
		carts = append(carts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i := range carts {
		if err := r.loadItems(ctx, &carts[i]); err != nil {
			return nil, err
		}
	}
	return carts, nil
}

func (r *repo) loadItems(ctx context.Context, c *Cart) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, quantity, unit_price, subtotal, remaining_qty
         FROM cart_items WHERE cart_id = $1 ORDER BY product_id`,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("select cart_items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.RemainingQty); err != nil {
			return fmt.Errorf("scan cart_item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, c *Cart) error {
	if len(c.Items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, quantity, unit_price, subtotal, remaining_qty)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare cart_items insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range c.Items {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(), c.ID, it.ProductID, it.Quantity, it.UnitPrice, it.Subtotal, it.RemainingQty,
		); err != nil {
			return fmt.Errorf("insert cart_item: %w", err)
		}
	}
	return nil
}
