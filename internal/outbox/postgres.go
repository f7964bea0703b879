package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rickshauling/ticketdrop/internal/shared/events"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Enqueue stores env for the relay. A repeated event_id is ignored.
func (r *PostgresRepo) Enqueue(ctx context.Context, env events.Envelope) error {
	const q = `
INSERT INTO outbox (event_id, aggregate, aggregate_id, event_type, request_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id) DO NOTHING;
`
	_, err := r.db.ExecContext(ctx, q,
		env.EventID, env.Aggregate, env.AggregateID, env.EventType, env.RequestID, []byte(env.Payload), env.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", env.EventType, err)
	}
	return nil
}

func (r *PostgresRepo) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	const q = `
WITH cte AS (
  SELECT id
  FROM outbox
  WHERE status = 'pending'
    AND next_retry_at <= now()
  ORDER BY created_at
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
SET status = 'processing',
    processing_started_at = now(),
    attempts = o.attempts + 1,
    updated_at = now()
FROM cte
WHERE o.id = cte.id
RETURNING o.id, o.event_id, o.aggregate, o.aggregate_id, o.event_type, o.request_id,
          o.payload, o.occurred_at, o.created_at, o.attempts;
`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.Aggregate,
			&rec.AggregateID,
			&rec.EventType,
			&rec.RequestID,
			&payload,
			&rec.OccurredAt,
			&rec.CreatedAt,
			&rec.Attempts,
		); err != nil {
			return nil, err
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepo) MarkSent(ctx context.Context, id int64) error {
	const q = `
UPDATE outbox
SET status = 'sent',
    sent_at = now(),
    processing_started_at = NULL,
    last_error = NULL,
    updated_at = now()
WHERE id = $1;
`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// MarkFailed returns the row to pending, not to be claimed before nextRetryAt.
func (r *PostgresRepo) MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	const q = `
UPDATE outbox
SET status = 'pending',
    processing_started_at = NULL,
    next_retry_at = $2,
    last_error = $3,
    updated_at = now()
WHERE id = $1;
`
	_, err := r.db.ExecContext(ctx, q, id, nextRetryAt.UTC(), errMsg)
	return err
}

func (r *PostgresRepo) RequeueStuck(ctx context.Context, timeout time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-timeout)
	const q = `
UPDATE outbox
SET status = 'pending',
    processing_started_at = NULL,
    next_retry_at = now(),
    last_error = 'processing timeout',
    updated_at = now()
WHERE status = 'processing' AND processing_started_at < $1;
`
	res, err := r.db.ExecContext(ctx, q, threshold)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LagSeconds is the age of the oldest pending row, 0 when none is pending.
func (r *PostgresRepo) LagSeconds(ctx context.Context) (float64, error) {
	const q = `
SELECT EXTRACT(EPOCH FROM (now() - created_at))
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1;
`
	var v sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return v.Float64, nil
}
