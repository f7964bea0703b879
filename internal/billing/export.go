package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rickshauling/ticketdrop/internal/shared/events"
	"github.com/rickshauling/ticketdrop/internal/shared/requestid"
	"github.com/rickshauling/ticketdrop/internal/ticket"
)

// ErrNoFilter is returned when neither a filter nor All is given.
var ErrNoFilter = errors.New("at least one filter or export-all is required")

// Source is the part of the ticket store an export needs.
type Source interface {
	List(ctx context.Context, c ticket.Collection) ([]ticket.Ticket, error)
	MarkExported(ctx context.Context, numbers []string, mark ticket.ExportMark) error
}

// Filter selects completed tickets. Set fields are ANDed. Dates are
// YYYY-MM-DD and inclusive; Customer matches case-insensitively.
type Filter struct {
	DateFrom string   `json:"date_from,omitempty"`
	DateTo   string   `json:"date_to,omitempty"`
	Customer string   `json:"customer,omitempty"`
	Tickets  []string `json:"tickets,omitempty"`
	All      bool     `json:"export_all,omitempty"`
}

func (f Filter) IsZero() bool {
	return f.DateFrom == "" && f.DateTo == "" && strings.TrimSpace(f.Customer) == "" && len(f.Tickets) == 0 && !f.All
}

func (f Filter) Validate() error {
	if f.IsZero() {
		return ErrNoFilter
	}
	for _, d := range []string{f.DateFrom, f.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("date %q is not YYYY-MM-DD", d)
		}
	}
	return nil
}

func (f Filter) match(t ticket.Ticket) bool {
	if len(f.Tickets) > 0 && !slices.Contains(f.Tickets, t.Number) {
		return false
	}
	if c := strings.TrimSpace(f.Customer); c != "" && !strings.EqualFold(t.Customer, c) {
		return false
	}
	if f.DateFrom != "" && t.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && t.Date > f.DateTo {
		return false
	}
	return true
}

type Options struct {
	// Force includes tickets that were already exported.
	Force bool
	// Mark stamps exported tickets with the batch id once the file is written.
	Mark bool
	// Output overrides the generated batch file name.
	Output string
}

type Skipped struct {
	Number string         `json:"ticket_number"`
	Errors []ticket.Issue `json:"errors"`
}

type Result struct {
	BatchID  string    `json:"batch_id,omitempty"`
	Path     string    `json:"path,omitempty"`
	Tickets  []string  `json:"tickets"`
	Records  []Record  `json:"records,omitempty"`
	Skipped  []Skipped `json:"skipped"`
	Marked   int       `json:"marked"`
	Exported time.Time `json:"exported_at"`
}

// Coordinator runs export batches: select, validate, transform, write, mark.
type Coordinator struct {
	Source  Source
	Writer  BatchWriter
	Events  ticket.Publisher
	Metrics *Metrics
	Log     *slog.Logger
	Now     func() time.Time
	// Company replaces the default company column when set.
	Company string
}

// BatchName is the default file name of a batch written at t.
func BatchName(t time.Time) string {
	return "AXON_Export_" + t.Format("20060102_150405") + ".csv"
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.New(slog.DiscardHandler)
}

// Export writes every matching completed ticket into one batch. Tickets that
// fail the export profile are skipped and logged. An empty selection writes
// nothing and is not an error. Tickets are marked only after the batch is
// written, so a failed write leaves every ticket unmarked.
func (c *Coordinator) Export(ctx context.Context, f Filter, opts Options) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}
	now := c.now()
	res := Result{Tickets: []string{}, Skipped: []Skipped{}, Exported: now.UTC()}

	completed, err := c.Source.List(ctx, ticket.CollectionCompleted)
	if err != nil {
		c.Metrics.batch("error", 0)
		return res, &ticket.StoreError{Op: "list", Err: err}
	}

	var records []Record
	for _, t := range completed {
		if (t.Exported && !opts.Force) || !f.match(t) {
			continue
		}
		if v := ticket.ValidateExport(t); !v.Valid {
			for _, i := range v.Errors {
				c.Metrics.skipped(i.Field)
			}
			c.log().Warn("export_ticket_skipped",
				slog.String("ticket_number", t.Number),
				slog.String("reason", v.Errors[0].Message),
			)
			res.Skipped = append(res.Skipped, Skipped{Number: t.Number, Errors: v.Errors})
			continue
		}
		rec := Transform(t)
		if c.Company != "" {
			rec.Company = c.Company
		}
		records = append(records, rec)
		res.Tickets = append(res.Tickets, t.Number)
	}
	res.Records = records

	if len(records) == 0 {
		c.log().Info("export_empty", slog.Int("skipped", len(res.Skipped)))
		c.Metrics.batch("empty", 0)
		return res, nil
	}

	name := opts.Output
	if name == "" {
		name = BatchName(now)
	}
	path, err := c.Writer.WriteBatch(ctx, name, records)
	if err != nil {
		c.log().Error("export_write_failed", slog.String("file", name), slog.String("err", err.Error()))
		c.Metrics.batch("error", 0)
		return res, &ticket.StoreError{Op: "write_batch", Err: err}
	}
	res.Path = path
	res.BatchID = filepath.Base(path)

	if opts.Mark {
		mark := ticket.ExportMark{File: res.BatchID, At: now}
		if err := c.Source.MarkExported(ctx, res.Tickets, mark); err != nil {
			c.log().Error("export_mark_failed",
				slog.String("batch_id", res.BatchID),
				slog.Int("tickets", len(res.Tickets)),
				slog.String("err", err.Error()),
			)
			c.Metrics.batch("error", 0)
			return res, &ticket.StoreError{Op: "mark_exported", Err: err}
		}
		res.Marked = len(res.Tickets)
		c.emit(ctx, res, now)
	}

	c.log().Info("export_written",
		slog.String("batch_id", res.BatchID),
		slog.String("path", res.Path),
		slog.Int("tickets", len(res.Tickets)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Bool("marked", opts.Mark),
	)
	c.Metrics.batch("ok", len(res.Tickets))
	return res, nil
}

func (c *Coordinator) emit(ctx context.Context, res Result, at time.Time) {
	if c.Events == nil {
		return
	}
	for _, n := range res.Tickets {
		env, err := events.New(events.TicketExported, n, requestid.Get(ctx), at, map[string]string{"export_file": res.BatchID})
		if err == nil {
			err = c.Events.Enqueue(ctx, env)
		}
		if err != nil {
			c.log().Error("outbox_enqueue_failed",
				slog.String("event_type", events.TicketExported),
				slog.String("ticket_number", n),
				slog.String("err", err.Error()),
			)
		}
	}
}
