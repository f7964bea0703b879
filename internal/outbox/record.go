package outbox

import (
	"encoding/json"
	"time"

	"github.com/rickshauling/ticketdrop/internal/shared/events"
)

type Record struct {
	ID          int64
	EventID     string
	Aggregate   string
	AggregateID string
	EventType   string
	RequestID   string
	Payload     json.RawMessage
	OccurredAt  time.Time
	CreatedAt   time.Time
	Attempts    int
}

// Envelope rebuilds the event exactly as it was enqueued.
func (r Record) Envelope() events.Envelope {
	return events.Envelope{
		EventID:     r.EventID,
		EventType:   r.EventType,
		OccurredAt:  r.OccurredAt,
		Aggregate:   r.Aggregate,
		AggregateID: r.AggregateID,
		RequestID:   r.RequestID,
		Payload:     r.Payload,
	}
}
