package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KalanaDissanayke/Emporium-API/internal/cart"
	"github.com/KalanaDissanayke/Emporium-API/internal/order"
)

// fakeStore models the database the processor runs against: carts and orders
// in one place, because CreateFromCart is a single transaction over both.
type fakeStore struct {
	mu     sync.Mutex
	carts  map[string]*cart.Cart
	orders []*order.Order
}

func newFakeStore(carts ...*cart.Cart) *fakeStore {
	s := &fakeStore{carts: make(map[string]*cart.Cart)}
	for _, c := range carts {
		s.carts[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetByID(ctx context.Context, cartID string) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) CreateFromCart(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.TransactionID == o.TransactionID || existing.CartID == o.CartID {
			return order.ErrDuplicate
		}
	}
	c, ok := s.carts[o.CartID]
	if !ok || c.Status != cart.StatusInProgress {
		return order.ErrCartNotCompletable
	}
	c.Status = cart.StatusCompleted
	cp := *o
	s.orders = append(s.orders, &cp)
	return nil
}

func (s *fakeStore) GetByTransactionID(ctx context.Context, txnID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TransactionID == txnID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *fakeStore) GetByCartID(ctx context.Context, cartID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.CartID == cartID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func inProgressCart(id, userID string) *cart.Cart {
	return &cart.Cart{
		ID:     id,
		UserID: userID,
		Status: cart.StatusInProgress,
		Items: []cart.LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: 625, Subtotal: 1250},
		},
	}
}

func signedNotification(v Verifier, txnID, cartID string) Notification {
	n := Notification{
		MerchantID:    "1213456",
		TransactionID: txnID,
		CartID:        cartID,
		Amount:        "1250.00",
		Currency:      "LKR",
		StatusCode:    StatusCodeSuccess,
	}
	n.Signature = v.Sign(n.CartID, n.Amount, n.Currency, n.StatusCode)
	return n
}

func TestProcessorHandleNotification(t *testing.T) {
	ctx := context.Background()
	verifier := NewVerifier("1213456", "super-secret")

	t.Run("completes the cart and creates the order", func(t *testing.T) {
		store := newFakeStore(inProgressCart("cart-1", "alice"))
		proc := NewProcessor(verifier, store, store, nil, nil)

		res, err := proc.HandleNotification(ctx, signedNotification(verifier, "txn-1", "cart-1"))
		require.NoError(t, err)
		require.NotNil(t, res.Order)

		assert.False(t, res.AlreadyProcessed)
		assert.Equal(t, "txn-1", res.Order.TransactionID)
		assert.Equal(t, "cart-1", res.Order.CartID)
		assert.Equal(t, "alice", res.Order.UserID)
		assert.Equal(t, 1250.0, res.Order.Amount)
		assert.Equal(t, order.CurrencyLKR, res.Order.Currency)

		c, err := store.GetByID(ctx, "cart-1")
		require.NoError(t, err)
		assert.Equal(t, cart.StatusCompleted, c.Status)
	})

	t.Run("replayed transaction returns the original order", func(t *testing.T) {
		store := newFakeStore(inProgressCart("cart-1", "alice"))
		proc := NewProcessor(verifier, store, store, nil, nil)
		n := signedNotification(verifier, "txn-1", "cart-1")

		first, err := proc.HandleNotification(ctx, n)
		require.NoError(t, err)

		second, err := proc.HandleNotification(ctx, n)
		require.NoError(t, err)
		assert.True(t, second.AlreadyProcessed)
		assert.Equal(t, first.Order.ID, second.Order.ID)
		assert.Equal(t, 1, store.orderCount())
	})

	t.Run("new transaction for a completed cart is acknowledged once", func(t *testing.T) {
		store := newFakeStore(inProgressCart("cart-1", "alice"))
		proc := NewProcessor(verifier, store, store, nil, nil)

		_, err := proc.HandleNotification(ctx, signedNotification(verifier, "txn-1", "cart-1"))
		require.NoError(t, err)

		// Gateway retried with a different transaction id for the same cart.
		res, err := proc.HandleNotification(ctx, signedNotification(verifier, "txn-2", "cart-1"))
		require.NoError(t, err)
		assert.True(t, res.AlreadyProcessed)
		require.NotNil(t, res.Order)
		assert.Equal(t, "txn-1", res.Order.TransactionID)
		assert.Equal(t, 1, store.orderCount())
	})

	t.Run("rejections mutate nothing", func(t *testing.T) {
		cases := map[string]func(n *Notification){
			"failed status code": func(n *Notification) { n.StatusCode = "-2" },
			"bad signature":      func(n *Notification) { n.Signature = "DEADBEEF" },
			"tampered amount": func(n *Notification) {
				n.Amount = "0.01"
			},
			"unsupported currency": func(n *Notification) {
				n.Currency = "EUR"
				n.Signature = verifier.Sign(n.CartID, n.Amount, n.Currency, n.StatusCode)
			},
			"missing transaction id": func(n *Notification) {
				n.TransactionID = ""
			},
		}

		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				store := newFakeStore(inProgressCart("cart-1", "alice"))
				proc := NewProcessor(verifier, store, store, nil, nil)

				n := signedNotification(verifier, "txn-1", "cart-1")
				mutate(&n)

				_, err := proc.HandleNotification(ctx, n)
				require.ErrorIs(t, err, ErrPaymentRejected)

				assert.Equal(t, 0, store.orderCount())
				c, err := store.GetByID(ctx, "cart-1")
				require.NoError(t, err)
				assert.Equal(t, cart.StatusInProgress, c.Status)
			})
		}
	})

	t.Run("malformed amount never reaches the verifier result", func(t *testing.T) {
		store := newFakeStore(inProgressCart("cart-1", "alice"))
		proc := NewProcessor(verifier, store, store, nil, nil)

		n := signedNotification(verifier, "txn-1", "cart-1")
		n.Amount = "not-a-number"
		n.Signature = verifier.Sign(n.CartID, n.Amount, n.Currency, n.StatusCode)

		_, err := proc.HandleNotification(ctx, n)
		require.ErrorIs(t, err, ErrPaymentRejected)
		assert.Equal(t, 0, store.orderCount())
	})

	t.Run("completed cart with no visible order is acknowledged without one", func(t *testing.T) {
		store := newFakeStore(&cart.Cart{ID: "cart-1", UserID: "alice", Status: cart.StatusCompleted})
		proc := NewProcessor(verifier, store, store, nil, nil)

		res, err := proc.HandleNotification(ctx, signedNotification(verifier, "txn-9", "cart-1"))
		require.NoError(t, err)
		assert.True(t, res.AlreadyProcessed)
		assert.Nil(t, res.Order)
		assert.Equal(t, 0, store.orderCount())
	})

	t.Run("unknown cart", func(t *testing.T) {
		store := newFakeStore()
		proc := NewProcessor(verifier, store, store, nil, nil)

		_, err := proc.HandleNotification(ctx, signedNotification(verifier, "txn-1", "ghost"))
		require.ErrorIs(t, err, cart.ErrNotFound)
	})

	t.Run("publishes OrderCompleted", func(t *testing.T) {
		store := newFakeStore(inProgressCart("cart-1", "alice"))
		events := &captureEvents{}
		proc := NewProcessor(verifier, store, store, events, nil)

		res, err := proc.HandleNotification(ctx, signedNotification(verifier, "txn-1", "cart-1"))
		require.NoError(t, err)
		require.Len(t, events.completed, 1)
		assert.Equal(t, res.Order.ID, events.completed[0])
	})

	t.Run("publish failure does not fail the notification", func(t *testing.T) {
		store := newFakeStore(inProgressCart("cart-1", "alice"))
		events := &captureEvents{err: errors.New("broker down")}
		proc := NewProcessor(verifier, store, store, events, nil)

		res, err := proc.HandleNotification(ctx, signedNotification(verifier, "txn-1", "cart-1"))
		require.NoError(t, err)
		assert.NotNil(t, res.Order)
	})
}

func TestProcessorConcurrentNotifications(t *testing.T) {
	ctx := context.Background()
	verifier := NewVerifier("1213456", "super-secret")
	store := newFakeStore(inProgressCart("cart-1", "alice"))
	proc := NewProcessor(verifier, store, store, nil, nil)

	n := signedNotification(verifier, "txn-1", "cart-1")

	const attempts = 8
	results := make(chan Result, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := proc.HandleNotification(ctx, n)
			if err != nil {
				t.Errorf("notification: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	var fresh int
	for res := range results {
		if !res.AlreadyProcessed {
			fresh++
		}
		if res.Order != nil && res.Order.TransactionID != "txn-1" {
			t.Errorf("unexpected order: %+v", res.Order)
		}
	}

	if fresh != 1 {
		t.Fatalf("%d notifications created an order, want exactly 1", fresh)
	}
	if store.orderCount() != 1 {
		t.Fatalf("%d orders stored, want 1", store.orderCount())
	}
}

type captureEvents struct {
	mu        sync.Mutex
	completed []string
	err       error
}

func (c *captureEvents) PublishOrderCompleted(ctx context.Context, o *order.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.completed = append(c.completed, o.ID)
	return nil
}
