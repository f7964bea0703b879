package notify

import (
	"context"
	"database/sql"
	"encoding/json"
)

type ProcessedEvent struct {
	EventID     string
	EventType   string
	Aggregate   string
	AggregateID string
	Payload     json.RawMessage
}

// Store tracks which events have been handled so redelivery is harmless.
type Store interface {
	// StartProcessing records the event and reports false if it is already done.
	StartProcessing(ctx context.Context, e ProcessedEvent) (bool, error)
	MarkDone(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, errMsg string) error
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) StartProcessing(ctx context.Context, e ProcessedEvent) (bool, error) {
	const q = `
INSERT INTO processed_events (event_id, event_type, aggregate, aggregate_id, payload, status, attempts, updated_at)
VALUES ($1,$2,$3,$4,$5,'processing',1,now())
ON CONFLICT (event_id) DO UPDATE
SET attempts = processed_events.attempts + 1,
    updated_at = now()
RETURNING status;
`
	var status string
	err := s.db.QueryRowContext(ctx, q, e.EventID, e.EventType, e.Aggregate, e.AggregateID, []byte(e.Payload)).Scan(&status)
	if err != nil {
		return false, err
	}
	return status != "done", nil
}

func (s *PostgresStore) MarkDone(ctx context.Context, eventID string) error {
	const q = `
UPDATE processed_events
SET status='done', processed_at=now(), last_error=NULL, updated_at=now()
WHERE event_id=$1;
`
	_, err := s.db.ExecContext(ctx, q, eventID)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, eventID string, errMsg string) error {
	const q = `
UPDATE processed_events
SET status='processing', last_error=$2, updated_at=now()
WHERE event_id=$1;
`
	_, err := s.db.ExecContext(ctx, q, eventID, errMsg)
	return err
}
