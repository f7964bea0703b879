package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TicketCreated   = "ticket.created"
	TicketAssigned  = "ticket.assigned"
	TicketUpdated   = "ticket.updated"
	TicketCompleted = "ticket.completed"
	TicketExported  = "ticket.exported"
)

const AggregateTicket = "ticket"

type Envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Aggregate   string          `json:"aggregate"`
	AggregateID string          `json:"aggregate_id"`
	RequestID   string          `json:"request_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// New builds a ticket envelope with a fresh event id. The payload is
// marshalled eagerly so a bad payload surfaces at the call site.
func New(eventType, ticketNumber, requestID string, at time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		OccurredAt:  at.UTC(),
		Aggregate:   AggregateTicket,
		AggregateID: ticketNumber,
		RequestID:   requestID,
		Payload:     raw,
	}, nil
}
