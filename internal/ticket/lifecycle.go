package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rickshauling/ticketdrop/internal/shared/events"
	"github.com/rickshauling/ticketdrop/internal/shared/requestid"
)

const (
	dateLayout        = "2006-01-02"
	maxNumberAttempts = 3
)

// Publisher receives lifecycle events after the store write has succeeded.
type Publisher interface {
	Enqueue(ctx context.Context, env events.Envelope) error
}

type VocabularySource interface {
	Vocabulary(ctx context.Context) (Vocabulary, error)
}

// Engine applies lifecycle operations to tickets held in Store. It keeps no
// state of its own between calls.
type Engine struct {
	Store   Store
	Vocab   VocabularySource
	Events  Publisher
	Metrics *Metrics
	Log     *slog.Logger
	Now     func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.New(slog.DiscardHandler)
}

// vocabulary never fails: an unreadable source means only presence checks run.
func (e *Engine) vocabulary(ctx context.Context) Vocabulary {
	src := e.Vocab
	if src == nil {
		src = e.Store
	}
	v, err := src.Vocabulary(ctx)
	if err != nil {
		e.log().Warn("vocabulary_load_failed", slog.String("err", err.Error()))
		return Vocabulary{}
	}
	return v
}

func (e *Engine) emit(ctx context.Context, eventType string, t Ticket, payload any) {
	if e.Events == nil {
		return
	}
	env, err := events.New(eventType, t.Number, requestid.Get(ctx), e.now(), payload)
	if err == nil {
		err = e.Events.Enqueue(ctx, env)
	}
	if err != nil {
		e.log().Error("outbox_enqueue_failed",
			slog.String("event_type", eventType),
			slog.String("ticket_number", t.Number),
			slog.String("err", err.Error()),
		)
	}
}

// Create validates req, assigns the next daily number and stores the ticket
// as CREATED in the active collection.
func (e *Engine) Create(ctx context.Context, req CreateTicketRequest) (t Ticket, res Result, err error) {
	defer func() { e.Metrics.op("create", err) }()

	req = req.Normalize()
	res = ValidateCreation(req, e.vocabulary(ctx))
	e.Metrics.result(res)
	if !res.Valid {
		return Ticket{}, res, &ValidationError{Result: res}
	}

	now := e.now()
	gen := NumberGenerator{Scanner: e.Store, Log: e.Log}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := gen.Next(ctx, now)
		if err != nil {
			return Ticket{}, res, err
		}

		t = Ticket{
			Number:              number,
			Date:                now.Format(dateLayout),
			Customer:            req.Customer,
			Pickup:              req.Pickup,
			Delivery:            req.Delivery,
			Product:             req.Product,
			Driver:              req.Driver,
			Truck:               req.Truck,
			Trailer:             req.Trailer,
			EstimatedVolume:     req.EstimatedVolume,
			SpecialInstructions: req.SpecialInstructions,
			Priority:            req.Priority,
			State:               StateCreated,
			CreatedAt:           now.UTC(),
			UpdatedAt:           now.UTC(),
		}

		err = e.Store.Insert(ctx, t)
		if errors.Is(err, ErrDuplicate) {
			e.log().Warn("ticket_number_collision", slog.String("ticket_number", number), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Ticket{}, res, storeErr("insert", err)
		}

		e.log().Info("ticket_created",
			slog.String("ticket_number", t.Number),
			slog.String("customer", t.Customer),
			slog.String("driver", t.Driver),
		)
		e.emit(ctx, events.TicketCreated, t, t)
		return t, res, nil
	}

	return Ticket{}, res, fmt.Errorf("allocate ticket number after %d attempts: %w", maxNumberAttempts, ErrDuplicate)
}

// Assign dispatches a CREATED ticket to its driver.
func (e *Engine) Assign(ctx context.Context, number string) (t Ticket, err error) {
	defer func() { e.Metrics.op("assign", err) }()

	t, err = e.Store.Get(ctx, CollectionActive, number)
	if err != nil {
		return Ticket{}, storeErr("get", err)
	}
	if t.State != StateCreated {
		return Ticket{}, &StateError{Number: number, State: t.State, Action: "assign"}
	}

	t.State = StateAssigned
	t.UpdatedAt = e.now().UTC()
	if err := e.Store.Replace(ctx, CollectionActive, t); err != nil {
		return Ticket{}, storeErr("replace", err)
	}

	e.log().Info("ticket_assigned", slog.String("ticket_number", number), slog.String("driver", t.Driver))
	e.emit(ctx, events.TicketAssigned, t, map[string]string{"driver": t.Driver, "truck": t.Truck})
	return t, nil
}

// fieldAliases maps accepted update names, including the sheet headers the
// driver app used, onto canonical field names.
var fieldAliases = map[string]string{
	"arrive_load":       "arrive_load",
	"arrive load":       "arrive_load",
	"depart_load":       "depart_load",
	"depart load":       "depart_load",
	"arrive_offload":    "arrive_offload",
	"arrive offload":    "arrive_offload",
	"depart_offload":    "depart_offload",
	"depart offload":    "depart_offload",
	"actual_volume":     "actual_volume",
	"actual vol":        "actual_volume",
	"actual volume":     "actual_volume",
	"hours":             "hours",
	"wait_time":         "wait_time",
	"wait time":         "wait_time",
	"job_description":   "job_description",
	"job description":   "job_description",
	"consignor_load":    "consignor_load",
	"consignor load":    "consignor_load",
	"consignor_offload": "consignor_offload",
	"consignor offload": "consignor_offload",
	"placards":          "placards",
	"hazard_check":      "hazard_check",
	"hazard check":      "hazard_check",
	"signature":         "signature",
	"notes":             "notes",
}

// CanonicalField resolves an update field name; ok is false for unknown and
// for creation-time fields, which never change.
func CanonicalField(name string) (string, bool) {
	f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// UpdateField applies one driver-app update to an active ticket. It does not
// run completion validation. Recording arrive_load moves the ticket to
// IN_PROGRESS.
func (e *Engine) UpdateField(ctx context.Context, number, field, value string) (t Ticket, err error) {
	defer func() { e.Metrics.op("update", err) }()

	canonical, ok := CanonicalField(field)
	if !ok {
		return Ticket{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	t, err = e.Store.Get(ctx, CollectionActive, number)
	if err != nil {
		return Ticket{}, storeErr("get", err)
	}

	if err := applyField(&t, canonical, strings.TrimSpace(value)); err != nil {
		return Ticket{}, err
	}
	if canonical == "arrive_load" && t.ArriveLoad.IsSet() && t.State.rank() < StateInProgress.rank() {
		t.State = StateInProgress
	}
	t.UpdatedAt = e.now().UTC()

	if err := e.Store.Replace(ctx, CollectionActive, t); err != nil {
		return Ticket{}, storeErr("replace", err)
	}

	e.log().Info("ticket_field_updated",
		slog.String("ticket_number", number),
		slog.String("field", canonical),
		slog.String("status", string(t.State)),
	)
	e.emit(ctx, events.TicketUpdated, t, map[string]string{"field": canonical, "value": value, "status": string(t.State)})
	return t, nil
}

func applyField(t *Ticket, field, value string) error {
	bad := func(format string, args ...any) error {
		r := newResult(StageUpdate)
		r.errorf(field, format, args...)
		return &ValidationError{Result: r.done()}
	}

	switch field {
	case "arrive_load":
		t.ArriveLoad = Timestamp(value)
	case "depart_load":
		t.DepartLoad = Timestamp(value)
	case "arrive_offload":
		t.ArriveOffload = Timestamp(value)
	case "depart_offload":
		t.DepartOffload = Timestamp(value)
	case "actual_volume", "hours", "wait_time":
		v := 0.0
		if value != "" {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return bad("%s must be a number, got %q", field, value)
			}
			v = f
		}
		switch field {
		case "actual_volume":
			t.ActualVolume = v
		case "hours":
			t.Hours = v
		default:
			t.WaitTime = v
		}
	case "hazard_check", "signature":
		b, ok := ParseFlag(value)
		if !ok {
			return bad("%s must be Y or N, got %q", field, value)
		}
		if field == "hazard_check" {
			t.HazardCheck = b
		} else {
			t.Signature = b
		}
	case "placards":
		t.Placards = SplitPlacards(value)
	case "job_description":
		t.JobDescription = value
	case "consignor_load":
		t.ConsignorLoad = value
	case "consignor_offload":
		t.ConsignorOffload = value
	case "notes":
		t.Notes = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// ParseFlag reads the checkbox values the field apps send.
func ParseFlag(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1", "on":
		return true, true
	case "", "n", "no", "false", "0", "off":
		return false, true
	}
	return false, false
}

// SplitPlacards parses a comma separated placard list, dropping blanks and repeats.
func SplitPlacards(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// Complete merges in into the active ticket, derives hours and wait time,
// and relocates it to the completed collection if the completion profile
// passes. On any failure the stored ticket is left exactly as it was.
func (e *Engine) Complete(ctx context.Context, number string, in CompletionInput) (t Ticket, res Result, err error) {
	defer func() { e.Metrics.op("complete", err) }()

	current, err := e.Store.Get(ctx, CollectionActive, number)
	if errors.Is(err, ErrNotFound) {
		if done, gerr := e.Store.Get(ctx, CollectionCompleted, number); gerr == nil {
			return Ticket{}, Result{}, &StateError{Number: number, State: done.State, Action: "complete"}
		}
	}
	if err != nil {
		return Ticket{}, Result{}, storeErr("get", err)
	}
	if current.State == StateCompleted {
		return Ticket{}, Result{}, &StateError{Number: number, State: current.State, Action: "complete"}
	}

	merged := mergeCompletion(current.Clone(), in)
	res = ValidateCompletion(merged)
	if merged.Hours <= 0 && len(res.Errors) == 0 {
		res.Errors = append(res.Errors, Issue{Field: "hours", Message: "hours must be greater than 0"})
		res.Valid = false
	}
	e.Metrics.result(res)
	if !res.Valid {
		e.log().Info("ticket_complete_rejected",
			slog.String("ticket_number", number),
			slog.Int("errors", len(res.Errors)),
		)
		return current, res, &ValidationError{Result: res}
	}

	now := e.now().UTC()
	merged.State = StateCompleted
	merged.CompletedAt = &now
	merged.UpdatedAt = now

	if err := e.Store.Relocate(ctx, merged); err != nil {
		return current, res, storeErr("relocate", err)
	}

	e.log().Info("ticket_completed",
		slog.String("ticket_number", number),
		slog.Float64("hours", merged.Hours),
		slog.Float64("wait_time", merged.WaitTime),
		slog.Float64("actual_volume", merged.ActualVolume),
		slog.Int("warnings", len(res.Warnings)),
	)
	e.emit(ctx, events.TicketCompleted, merged, merged)
	return merged, res, nil
}

func mergeCompletion(t Ticket, in CompletionInput) Ticket {
	if in.ArriveLoad != nil {
		t.ArriveLoad = *in.ArriveLoad
	}
	if in.DepartLoad != nil {
		t.DepartLoad = *in.DepartLoad
	}
	if in.ArriveOffload != nil {
		t.ArriveOffload = *in.ArriveOffload
	}
	if in.DepartOffload != nil {
		t.DepartOffload = *in.DepartOffload
	}
	if in.ActualVolume != nil {
		t.ActualVolume = *in.ActualVolume
	}

	setText := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setText(&t.JobDescription, in.JobDescription)
	setText(&t.ConsignorLoad, in.ConsignorLoad)
	setText(&t.ConsignorOffload, in.ConsignorOffload)
	setText(&t.Notes, in.Notes)
	if in.Placards != nil {
		t.Placards = SplitPlacards(strings.Join(in.Placards, ","))
	}
	if in.HazardCheck != nil {
		t.HazardCheck = *in.HazardCheck
	}
	if in.Signature != nil {
		t.Signature = *in.Signature
	}

	switch {
	case in.Hours != nil && *in.Hours > 0:
		t.Hours = Round2(*in.Hours)
	case t.Hours <= 0:
		t.Hours = Hours(t)
	}
	switch {
	case in.WaitTime != nil && *in.WaitTime > 0:
		t.WaitTime = Round2(*in.WaitTime)
	case t.WaitTime <= 0:
		t.WaitTime = WaitTime(t)
	}
	return t
}

// Find looks a ticket up in the active collection, then the completed one.
func (e *Engine) Find(ctx context.Context, number string) (Ticket, Collection, error) {
	for _, c := range []Collection{CollectionActive, CollectionCompleted} {
		t, err := e.Store.Get(ctx, c, number)
		if err == nil {
			return t, c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Ticket{}, "", storeErr("get", err)
		}
	}
	return Ticket{}, "", ErrNotFound
}

// Check runs the profile that gates a ticket's next step: completion for
// active tickets, export for completed ones.
func (e *Engine) Check(ctx context.Context, number string) (Ticket, Collection, Result, error) {
	t, c, err := e.Find(ctx, number)
	if err != nil {
		return Ticket{}, "", Result{}, err
	}
	if c == CollectionCompleted {
		return t, c, ValidateExport(t), nil
	}
	return t, c, ValidateCompletion(t), nil
}

// TicketIssues is one ticket's line in a validation report.
type TicketIssues struct {
	Number   string  `json:"ticket_number"`
	Status   State   `json:"status"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// StageReport summarises one profile across a collection.
type StageReport struct {
	Stage        Stage          `json:"stage"`
	Total        int            `json:"total"`
	Valid        int            `json:"valid"`
	Invalid      int            `json:"invalid"`
	WithWarnings int            `json:"with_warnings"`
	Tickets      []TicketIssues `json:"tickets"`
}

// Report validates every active ticket against the completion profile and
// every completed ticket against the export profile. Tickets without errors
// or warnings are counted but not listed.
func (e *Engine) Report(ctx context.Context) ([]StageReport, error) {
	runs := []struct {
		c     Collection
		stage Stage
		check func(Ticket) Result
	}{
		{CollectionActive, StageCompletion, ValidateCompletion},
		{CollectionCompleted, StageExport, ValidateExport},
	}

	out := make([]StageReport, 0, len(runs))
	for _, run := range runs {
		tickets, err := e.Store.List(ctx, run.c)
		if err != nil {
			return nil, storeErr("list", err)
		}
		rep := StageReport{Stage: run.stage, Tickets: []TicketIssues{}}
		for _, t := range tickets {
			res := run.check(t)
			rep.Total++
			if res.Valid {
				rep.Valid++
			} else {
				rep.Invalid++
			}
			if len(res.Warnings) > 0 {
				rep.WithWarnings++
			}
			if len(res.Errors) > 0 || len(res.Warnings) > 0 {
				rep.Tickets = append(rep.Tickets, TicketIssues{
					Number: t.Number, Status: t.State, Errors: res.Errors, Warnings: res.Warnings,
				})
			}
		}
		out = append(out, rep)
	}
	return out, nil
}
