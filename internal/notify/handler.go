package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rickshauling/ticketdrop/internal/shared/events"
)

// Handler turns ticket events into notices for dispatch and billing.
type Handler struct {
	Store Store
	Log   *slog.Logger
}

type ticketPayload struct {
	Customer     string  `json:"customer"`
	Driver       string  `json:"driver"`
	Truck        string  `json:"truck"`
	Priority     string  `json:"priority"`
	Status       string  `json:"status"`
	Field        string  `json:"field"`
	ActualVolume float64 `json:"actual_volume"`
	Hours        float64 `json:"hours"`
	ExportFile   string  `json:"export_file"`
}

// Handle processes one raw message and returns its event type for metrics.
// An event already marked done is acknowledged without a second notice.
func (h *Handler) Handle(ctx context.Context, value []byte) (string, error) {
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return "unknown", fmt.Errorf("decode envelope: %w", err)
	}

	shouldProcess, err := h.Store.StartProcessing(ctx, ProcessedEvent{
		EventID:     env.EventID,
		EventType:   env.EventType,
		Aggregate:   env.Aggregate,
		AggregateID: env.AggregateID,
		Payload:     env.Payload,
	})
	if err != nil {
		return env.EventType, err
	}
	if !shouldProcess {
		h.Log.Info("event_skip_done", slog.String("event_id", env.EventID), slog.String("event_type", env.EventType))
		return env.EventType, nil
	}

	if err := h.notice(env); err != nil {
		_ = h.Store.MarkFailed(ctx, env.EventID, err.Error())
		return env.EventType, err
	}
	if err := h.Store.MarkDone(ctx, env.EventID); err != nil {
		_ = h.Store.MarkFailed(ctx, env.EventID, err.Error())
		return env.EventType, err
	}
	return env.EventType, nil
}

func (h *Handler) notice(env events.Envelope) error {
	var p ticketPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.EventType, err)
		}
	}
	number := slog.String("ticket_number", env.AggregateID)
	rid := slog.String("request_id", env.RequestID)

	switch env.EventType {
	case events.TicketCreated:
		h.Log.Info("dispatch_notice", number, rid,
			slog.String("kind", "new_ticket"),
			slog.String("customer", p.Customer),
			slog.String("driver", p.Driver),
			slog.String("priority", p.Priority),
		)
	case events.TicketAssigned:
		h.Log.Info("dispatch_notice", number, rid,
			slog.String("kind", "assigned"),
			slog.String("driver", p.Driver),
			slog.String("truck", p.Truck),
		)
	case events.TicketUpdated:
		h.Log.Debug("ticket_progress", number, rid, slog.String("field", p.Field), slog.String("status", p.Status))
	case events.TicketCompleted:
		h.Log.Info("billing_ready", number, rid,
			slog.String("customer", p.Customer),
			slog.Float64("actual_volume", p.ActualVolume),
			slog.Float64("hours", p.Hours),
		)
	case events.TicketExported:
		h.Log.Info("billing_exported", number, rid, slog.String("export_file", p.ExportFile))
	default:
		h.Log.Warn("event_type_unknown", number, slog.String("event_type", env.EventType))
	}
	return nil
}
