package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"behaviorguard/internal/domain/event"
	domainerrors "behaviorguard/internal/domain/errors"
)

// EventRepository persists behavioral events in PostgreSQL.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Insert writes one event as a single transaction. received_at is
// assigned by the database at commit time; the client-reported value,
// if any, is ignored.
func (r *EventRepository) Insert(ctx context.Context, e *event.BehavioralEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domainerrors.NewTransportError("failed to begin transaction").WithCause(err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO behavioral_events (user_id, event_type, x, y, key, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := tx.Exec(ctx, query, e.UserID, e.EventType, e.X, e.Y, e.Key, e.Timestamp); err != nil {
		return domainerrors.NewPersistenceError("failed to insert event").WithCause(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domainerrors.NewPersistenceError("failed to commit event").WithCause(err)
	}
	return nil
}

// ListByUserAndType returns a user's historical events of one type,
// ordered by client timestamp ascending.
func (r *EventRepository) ListByUserAndType(ctx context.Context, userID, eventType string) ([]event.BehavioralEvent, error) {
	query := `
		SELECT id, user_id, event_type, x, y, key, timestamp, received_at
		FROM behavioral_events
		WHERE user_id = $1 AND event_type = $2
		ORDER BY timestamp ASC`

	rows, err := r.db.Query(ctx, query, userID, eventType)
	if err != nil {
		return nil, fmt.Errorf("querying events for user %s: %w", userID, err)
	}
	defer rows.Close()

	var events []event.BehavioralEvent
	for rows.Next() {
		var e event.BehavioralEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.X, &e.Y, &e.Key, &e.Timestamp, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, nil
}
