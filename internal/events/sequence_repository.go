package events

import (
	"context"
	"database/sql"
	"fmt"
)

// The upsert is a single atomic statement, so no explicit transaction is
// needed; concurrent publishers for the same cart serialize on the row.
const nextSequenceQuery = `
INSERT INTO event_sequences (partition_key, last_sequence, updated_at)
VALUES ($1, 1, NOW())
ON CONFLICT (partition_key) DO UPDATE
SET last_sequence = event_sequences.last_sequence + 1,
    updated_at = NOW()
RETURNING last_sequence
`

// CartSequences issues strictly increasing sequence numbers per cart from
// the event_sequences table. Consumers rely on them to order and deduplicate
// one cart's events.
type CartSequences struct {
	db sequenceQuerier
}

func NewSequenceRepository(db *sql.DB) *CartSequences {
	return &CartSequences{db: sqlSequenceQuerier{db: db}}
}

func (s *CartSequences) NextSequence(ctx context.Context, cartID string) (int64, error) {
	if cartID == "" {
		return 0, fmt.Errorf("cart id is required")
	}

	var seq int64
	if err := s.db.QueryRowContext(ctx, nextSequenceQuery, cartID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence for cart %s: %w", cartID, err)
	}
	return seq, nil
}

// sequenceQuerier narrows *sql.DB to the one call NextSequence makes, so
// tests can drive it without a database.
type sequenceQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) sequenceRow
}

type sequenceRow interface {
	Scan(dest ...any) error
}

type sqlSequenceQuerier struct {
	db *sql.DB
}

func (q sqlSequenceQuerier) QueryRowContext(ctx context.Context, query string, args ...any) sequenceRow {
	return q.db.QueryRowContext(ctx, query, args...)
}
