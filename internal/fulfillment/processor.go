package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/KalanaDissanayke/Emporium-API/internal/cart"
	"github.com/KalanaDissanayke/Emporium-API/internal/order"
)

// ErrPaymentRejected covers every notification we refuse to act on: bad
// status code, bad signature, malformed amount or currency. A rejected
// notification mutates nothing.
var ErrPaymentRejected = errors.New("payment rejected")

// StatusCodeSuccess is the gateway's code for a captured payment.
const StatusCodeSuccess = "2"

// Notification is the payment gateway's asynchronous callback, fields as
// PayHere posts them. Amount stays a string until the signature is verified;
// the digest covers the exact wire form.
type Notification struct {
	MerchantID    string
	TransactionID string
	CartID        string
	Amount        string
	Currency      string
	StatusCode    string
	Signature     string
}

type Result struct {
	Order *order.Order
	// AlreadyProcessed is set when this notification was a replay. Gateways
	// retry; a replay is acknowledged, not failed.
	AlreadyProcessed bool
}

type CartStore interface {
	GetByID(ctx context.Context, cartID string) (*cart.Cart, error)
}

type OrderStore interface {
	CreateFromCart(ctx context.Context, o *order.Order) error
	GetByTransactionID(ctx context.Context, txnID string) (*order.Order, error)
	GetByCartID(ctx context.Context, cartID string) (*order.Order, error)
}

type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, o *order.Order) error
}

// Processor turns verified payment notifications into orders. The cart's
// reservation becomes the permanent deduction; no stock is touched here.
type Processor struct {
	verifier Verifier
	carts    CartStore
	orders   OrderStore
	events   EventPublisher
	logger   *log.Logger
}

func NewProcessor(verifier Verifier, carts CartStore, orders OrderStore, events EventPublisher, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{verifier: verifier, carts: carts, orders: orders, events: events, logger: logger}
}

// HandleNotification is idempotent per transaction id and per cart: a replay
// returns the already-created order. Two concurrent notifications race on
// the orders table's unique constraints and the loser re-reads the winner's
// result.
func (p *Processor) HandleNotification(ctx context.Context, n Notification) (Result, error) {
	if n.StatusCode != StatusCodeSuccess {
		return Result{}, fmt.Errorf("%w: status code %q", ErrPaymentRejected, n.StatusCode)
	}
	if !p.verifier.Verify(n) {
		return Result{}, fmt.Errorf("%w: signature mismatch", ErrPaymentRejected)
	}
	amount, err := strconv.ParseFloat(n.Amount, 64)
	if err != nil || amount < 0 {
		return Result{}, fmt.Errorf("%w: malformed amount %q", ErrPaymentRejected, n.Amount)
	}
	if !order.ValidCurrency(n.Currency) {
		return Result{}, fmt.Errorf("%w: unsupported currency %q", ErrPaymentRejected, n.Currency)
	}
	if n.TransactionID == "" || n.CartID == "" {
		return Result{}, fmt.Errorf("%w: missing transaction or cart id", ErrPaymentRejected)
	}

	if existing, err := p.orders.GetByTransactionID(ctx, n.TransactionID); err == nil {
		return Result{Order: existing, AlreadyProcessed: true}, nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return Result{}, err
	}

	c, err := p.carts.GetByID(ctx, n.CartID)
	if err != nil {
		return Result{}, err
	}
	if c.Status == cart.StatusCompleted {
		return p.replayResult(ctx, n)
	}

	o := &order.Order{
		ID:            uuid.NewString(),
		TransactionID: n.TransactionID,
		CartID:        c.ID,
		UserID:        c.UserID,
		Amount:        amount,
		Currency:      n.Currency,
		CreatedAt:     time.Now().UTC(),
	}

	if err := p.orders.CreateFromCart(ctx, o); err != nil {
		if errors.Is(err, order.ErrDuplicate) || errors.Is(err, order.ErrCartNotCompletable) {
			// Lost the race to a concurrent notification.
			return p.replayResult(ctx, n)
		}
		return Result{}, err
	}

	if p.events != nil {
		if err := p.events.PublishOrderCompleted(ctx, o); err != nil {
			p.logger.Printf("publish OrderCompleted for order %s: %v", o.ID, err)
		}
	}

	return Result{Order: o}, nil
}

func (p *Processor) replayResult(ctx context.Context, n Notification) (Result, error) {
	if o, err := p.orders.GetByTransactionID(ctx, n.TransactionID); err == nil {
		return Result{Order: o, AlreadyProcessed: true}, nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return Result{}, err
	}
	if o, err := p.orders.GetByCartID(ctx, n.CartID); err == nil {
		return Result{Order: o, AlreadyProcessed: true}, nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return Result{}, err
	}
	// Cart is COMPLETED but no order is visible. Acknowledge the replay
	// rather than re-running a completion that already happened. Order is
	// nil on this path; callers must check it before dereferencing.
	return Result{AlreadyProcessed: true}, nil
}
