package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultListLimit = 50

// Entry is one recorded card lifecycle event.
type Entry struct {
	ID         int64     `db:"id" json:"id"`
	Type       string    `db:"event_type" json:"type"`
	CardID     string    `db:"card_id" json:"cardId"`
	CNIC       string    `db:"cnic" json:"cnic"`
	Actor      string    `db:"actor" json:"actor,omitempty"`
	At         time.Time `db:"occurred_at" json:"at"`
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`
}

const schema = `
CREATE TABLE IF NOT EXISTS card_events (
	id          BIGSERIAL PRIMARY KEY,
	event_type  TEXT        NOT NULL,
	card_id     TEXT        NOT NULL,
	cnic        TEXT        NOT NULL DEFAULT '',
	actor       TEXT        NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (card_id, event_type, occurred_at)
);
CREATE INDEX IF NOT EXISTS card_events_card_idx ON card_events (card_id, occurred_at DESC);
`

type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create card_events schema: %w", err)
	}
	return nil
}

// Record stores ev. A redelivered event is ignored and reports false.
func (s *EventStore) Record(ctx context.Context, ev comm.CardEvent) (bool, error) {
	query := `
		INSERT INTO card_events (event_type, card_id, cnic, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (card_id, event_type, occurred_at) DO NOTHING
	`

	tag, err := s.db.Exec(ctx, query, ev.Type, ev.CardID, ev.CNIC, ev.Actor, ev.At)
	if err != nil {
		return false, fmt.Errorf("failed to record card event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByCard returns the newest limit events of one card, newest first.
func (s *EventStore) ListByCard(ctx context.Context, cardID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, event_type, card_id, cnic, actor, occurred_at, received_at
		FROM card_events
		WHERE card_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list card events: %w", err)
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Entry])
	if err != nil {
		return nil, fmt.Errorf("failed to scan card events: %w", err)
	}
	return entries, nil
}
