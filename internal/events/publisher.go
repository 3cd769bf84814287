package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/KalanaDissanayke/Emporium-API/internal/cart"
	"github.com/KalanaDissanayke/Emporium-API/internal/order"
)

// SequenceRepository hands out gapless sequence numbers per cart so
// consumers can order and deduplicate one cart's events.
type SequenceRepository interface {
	NextSequence(ctx context.Context, cartID string) (int64, error)
}

type Publisher struct {
	ch        *amqp.Channel
	sequences SequenceRepository
}

func NewPublisher(conn *amqp.Connection, sequences SequenceRepository) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{ch: ch, sequences: sequences}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishOrderCompleted(ctx context.Context, o *order.Order) error {
	seq, err := p.sequences.NextSequence(ctx, o.CartID)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	now := time.Now().UTC()
	env := EventEnvelope[OrderCompletedPayload]{
		EventName:    OrderCompletedEventName,
		EventVersion: OrderCompletedEventVersion,
		EventID:      uuid.NewString(),
		Producer:     producerName,
		PartitionKey: o.CartID,
		Sequence:     seq,
		OccurredAt:   now,
		Payload: OrderCompletedPayload{
			OrderID:       o.ID,
			CartID:        o.CartID,
			UserID:        o.UserID,
			TransactionID: o.TransactionID,
			Amount:        o.Amount,
			Currency:      o.Currency,
			Timestamp:     now,
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal OrderCompleted: %w", err)
	}
	return p.publishJSON(ctx, OrderCompletedRoutingKey, body)
}

func (p *Publisher) PublishCartReleased(ctx context.Context, c *cart.Cart) error {
	seq, err := p.sequences.NextSequence(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	now := time.Now().UTC()
	payload := CartReleasedPayload{
		CartID:      c.ID,
		UserID:      c.UserID,
		TotalAmount: c.Total(),
		Timestamp:   now,
	}
	for _, it := range c.Items {
		payload.Items = append(payload.Items, CartItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
		})
	}

	env := EventEnvelope[CartReleasedPayload]{
		EventName:    CartReleasedEventName,
		EventVersion: CartReleasedEventVersion,
		EventID:      uuid.NewString(),
		Producer:     producerName,
		PartitionKey: c.ID,
		Sequence:     seq,
		OccurredAt:   now,
		Payload:      payload,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal CartReleased: %w", err)
	}
	return p.publishJSON(ctx, CartReleasedRoutingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// NopPublisher satisfies the publisher interfaces for deployments without a
// broker.
type NopPublisher struct{}

func (NopPublisher) PublishOrderCompleted(ctx context.Context, o *order.Order) error { return nil }
func (NopPublisher) PublishCartReleased(ctx context.Context, c *cart.Cart) error     { return nil }
