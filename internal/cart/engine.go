package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KalanaDissanayke/Emporium-API/internal/auth"
	"github.com/KalanaDissanayke/Emporium-API/internal/stock"
)

var (
	ErrUnauthorized = errors.New("not authorized to access cart")
	ErrConflict     = errors.New("user already has a cart in progress")
	ErrInvalidInput = errors.New("invalid cart input")
)

// EventPublisher receives lifecycle events the engine emits. Publishing is
// best effort and never blocks a cart operation from succeeding.
type EventPublisher interface {
	PublishCartReleased(ctx context.Context, c *Cart) error
}

// Engine owns the cart lifecycle. Stock is reserved eagerly when a cart is
// created or updated, so a shopper who built a cart cannot lose their items
// to another shopper at payment time. The reservation is only given back by
// deleting the cart; completion keeps it as the final sale.
type Engine struct {
	repo   Repository
	ledger stock.Ledger
	events EventPublisher
	logger *log.Logger

	locks keyedMutex
}

func NewEngine(repo Repository, ledger stock.Ledger, events EventPublisher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{repo: repo, ledger: ledger, events: events, logger: logger}
}

// Create validates the requested lines against the ledger, persists the cart
// as IN_PROGRESS and reserves stock for every line. The whole call is
// all-or-nothing: if any reservation is lost to a concurrent cart, the ones
// already taken are released and the cart row is removed again.
func (e *Engine) Create(ctx context.Context, actor auth.Actor, items []ItemInput) (*Cart, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock("user:" + actor.UserID)
	defer unlock()

	if !actor.IsAdmin() {
		existing, err := e.repo.FindActive(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: user %s", ErrConflict, actor.UserID)
		}
	}

	lines, err := e.priceAndCheck(ctx, merged, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Cart{
		ID:        uuid.NewString(),
		UserID:    actor.UserID,
		Items:     lines,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.Insert(ctx, c); err != nil {
		return nil, err
	}

	for i, it := range c.Items {
		if err := e.ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			// Another cart won the race for this product. Give back what
			// this cart already took and undo the insert.
			for j := 0; j < i; j++ {
				if relErr := e.ledger.Release(ctx, c.Items[j].ProductID, c.Items[j].Quantity); relErr != nil {
					e.logger.Printf("rollback release %s: %v", c.Items[j].ProductID, relErr)
				}
			}
			if delErr := e.repo.Delete(ctx, c.ID); delErr != nil {
				e.logger.Printf("rollback delete cart %s: %v", c.ID, delErr)
			}
			return nil, err
		}
	}

	return c, nil
}

// Update replaces the cart's lines with a new set. The prior reservation and
// the new one are reconciled as a net delta per product applied in a single
// ledger transaction, so no other cart can grab stock in between.
func (e *Engine) Update(ctx context.Context, actor auth.Actor, cartID string, items []ItemInput) (*Cart, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock("cart:" + cartID)
	defer unlock()

	c, err := e.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(c.UserID) {
		return nil, ErrUnauthorized
	}
	if c.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: cart %s is %s", ErrConflict, c.ID, c.Status)
	}

	held := make(map[string]int, len(c.Items))
	for _, it := range c.Items {
		held[it.ProductID] = it.Quantity
	}

	lines, err := e.priceAndCheck(ctx, merged, held)
	if err != nil {
		return nil, err
	}

	deltas := reservationDeltas(held, merged)
	depleted, err := e.ledger.AdjustAll(ctx, deltas)
	if err != nil {
		return nil, err
	}
	if len(depleted) > 0 {
		return nil, insufficientErr(depleted)
	}

	c.Items = lines
	c.UpdatedAt = time.Now().UTC()
	if err := e.repo.ReplaceItems(ctx, c); err != nil {
		// Put the ledger back the way it was.
		inverse := make([]stock.Line, 0, len(deltas))
		for _, d := range deltas {
			inverse = append(inverse, stock.Line{ProductID: d.ProductID, Quantity: -d.Quantity})
		}
		if _, invErr := e.ledger.AdjustAll(ctx, inverse); invErr != nil {
			e.logger.Printf("compensating adjust for cart %s: %v", c.ID, invErr)
		}
		return nil, err
	}

	return c, nil
}

// Delete releases every reserved line, then removes the cart. A COMPLETED
// cart cannot be deleted; its order references it.
func (e *Engine) Delete(ctx context.Context, actor auth.Actor, cartID string) error {
	unlock := e.locks.lock("cart:" + cartID)
	defer unlock()

	c, err := e.repo.GetByID(ctx, cartID)
	if err != nil {
		return err
	}
	if !actor.CanAccess(c.UserID) {
		return ErrUnauthorized
	}
	if c.Status == StatusCompleted {
		return fmt.Errorf("%w: cart %s is completed", ErrConflict, c.ID)
	}

	releases := make([]stock.Line, 0, len(c.Items))
	for _, it := range c.Items {
		releases = append(releases, stock.Line{ProductID: it.ProductID, Quantity: -it.Quantity})
	}
	if _, err := e.ledger.AdjustAll(ctx, releases); err != nil {
		return err
	}

	if err := e.repo.Delete(ctx, c.ID); err != nil {
		// The cart row survived, so take the reservation back before the
		// caller retries and releases it a second time.
		inverse := make([]stock.Line, 0, len(releases))
		for _, l := range releases {
			inverse = append(inverse, stock.Line{ProductID: l.ProductID, Quantity: -l.Quantity})
		}
		if _, invErr := e.ledger.AdjustAll(ctx, inverse); invErr != nil {
			e.logger.Printf("compensating adjust for cart %s: %v", c.ID, invErr)
		}
		return err
	}

	if e.events != nil {
		if err := e.events.PublishCartReleased(ctx, c); err != nil {
			e.logger.Printf("publish CartReleased for cart %s: %v", c.ID, err)
		}
	}
	return nil
}

func (e *Engine) Get(ctx context.Context, actor auth.Actor, cartID string) (*Cart, error) {
	c, err := e.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(c.UserID) {
		return nil, ErrUnauthorized
	}
	return c, nil
}

func (e *Engine) List(ctx context.Context, actor auth.Actor) ([]Cart, error) {
	if actor.IsAdmin() {
		return e.repo.ListAll(ctx)
	}
	return e.repo.ListByUser(ctx, actor.UserID)
}

// priceAndCheck resolves every requested product and computes subtotal and
// remaining stock per line. held carries quantities this cart already has
// reserved, which count as available to it during an update.
func (e *Engine) priceAndCheck(ctx context.Context, merged []ItemInput, held map[string]int) ([]LineItem, error) {
	lines := make([]LineItem, 0, len(merged))
	var depleted []stock.DepletedLine
	for _, in := range merged {
		p, err := e.ledger.GetProduct(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, stock.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %s", stock.ErrNotFound, in.ProductID)
			}
			return nil, err
		}

		available := p.Quantity + held[in.ProductID]
		remaining := available - in.Quantity
		if remaining < 0 {
			depleted = append(depleted, stock.DepletedLine{
				ProductID: in.ProductID,
				Requested: in.Quantity,
				Available: available,
			})
		}

		lines = append(lines, LineItem{
			ProductID:    in.ProductID,
			Quantity:     in.Quantity,
			UnitPrice:    p.UnitPrice,
			Subtotal:     p.UnitPrice * float64(in.Quantity),
			RemainingQty: remaining,
		})
	}
	if len(depleted) > 0 {
		return nil, insufficientErr(depleted)
	}
	return lines, nil
}

// mergeItems validates quantities and folds duplicate product lines into one.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart needs at least one item", ErrInvalidInput)
	}

	idx := make(map[string]int, len(items))
	merged := make([]ItemInput, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return nil, fmt.Errorf("%w: missing product id", ErrInvalidInput)
		}
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for product %s must be at least 1", ErrInvalidInput, it.ProductID)
		}
		if i, ok := idx[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

// reservationDeltas computes the net per-product change between the held
// quantities and the requested set. Positive reserves, negative releases.
func reservationDeltas(held map[string]int, requested []ItemInput) []stock.Line {
	want := make(map[string]int, len(requested))
	for _, it := range requested {
		want[it.ProductID] = it.Quantity
	}

	seen := make(map[string]bool, len(held)+len(want))
	var deltas []stock.Line
	for pid, q := range want {
		deltas = append(deltas, stock.Line{ProductID: pid, Quantity: q - held[pid]})
		seen[pid] = true
	}
	for pid, q := range held {
		if !seen[pid] {
			deltas = append(deltas, stock.Line{ProductID: pid, Quantity: -q})
		}
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].ProductID < deltas[j].ProductID })
	return deltas
}

func insufficientErr(depleted []stock.DepletedLine) error {
	d := depleted[0]
	return fmt.Errorf("%w: product %s has %d, requested %d", stock.ErrInsufficientStock, d.ProductID, d.Available, d.Requested)
}

// keyedMutex hands out one mutex per key so operations on the same cart (or
// the same user's cart set) are serialized while unrelated ones run freely.
// Entries are reference counted and dropped when the last holder unlocks, so
// the map only holds keys with operations in flight.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
