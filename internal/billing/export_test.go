package billing_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rickshauling/ticketdrop/internal/billing"
	"github.com/rickshauling/ticketdrop/internal/ticket"
)

var exportTime = time.Date(2025, 3, 7, 16, 45, 30, 0, time.UTC)

func seededStore(t *testing.T) *ticket.InMemoryStore {
	t.Helper()
	store := ticket.NewInMemoryStore()
	seed := []ticket.Ticket{
		{Number: "250305001", Date: "2025-03-05", Customer: "Acme", Driver: "Brant Fandrey", ArriveLoad: "2025-03-05T08:00:00", ActualVolume: 85.5, Hours: 4},
		{Number: "250306001", Date: "2025-03-06", Customer: "Spur Petroleum", Driver: "Cher", ArriveLoad: "2025-03-06T07:00:00", ActualVolume: 20, Hours: 2.25},
		{Number: "250306002", Date: "2025-03-06", Customer: "ACME", Driver: "Lee Ames", ArriveLoad: "2025-03-06T09:00:00", ActualVolume: 0, Hours: 3},
	}
	for _, tk := range seed {
		tk.State = ticket.StateCompleted
		if err := store.Relocate(context.Background(), tk); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func newCoordinator(store billing.Source, w billing.BatchWriter) *billing.Coordinator {
	return &billing.Coordinator{
		Source: store,
		Writer: w,
		Now:    func() time.Time { return exportTime },
	}
}

func TestExportAllWritesAndMarks(t *testing.T) {
	store := seededStore(t)
	dir := t.TempDir()
	c := newCoordinator(store, billing.FileWriter{Dir: dir})

	res, err := c.Export(context.Background(), billing.Filter{All: true}, billing.Options{Mark: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if res.BatchID != "AXON_Export_20250307_164530.csv" {
		t.Fatalf("unexpected batch id %q", res.BatchID)
	}
	if len(res.Tickets) != 2 || res.Tickets[0] != "250305001" || res.Tickets[1] != "250306001" {
		t.Fatalf("unexpected tickets %v", res.Tickets)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Number != "250306002" {
		t.Fatalf("expected zero-volume ticket skipped, got %+v", res.Skipped)
	}
	if res.Marked != 2 {
		t.Fatalf("expected 2 marked, got %d", res.Marked)
	}

	f, err := os.Open(filepath.Join(dir, res.BatchID))
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Attachment" || rows[1][7] != "Fandrey, Brant" || rows[1][10] != "85.50" || rows[1][14] != "4.00" {
		t.Fatalf("unexpected csv content %v", rows[:2])
	}

	got, err := store.Get(context.Background(), ticket.CollectionCompleted, "250305001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Exported || got.ExportFile != res.BatchID || got.ExportedAt == nil || !got.ExportedAt.Equal(exportTime) {
		t.Fatalf("expected export mark, got exported=%v file=%q at=%v", got.Exported, got.ExportFile, got.ExportedAt)
	}
}

func TestExportTwiceSelectsNothing(t *testing.T) {
	store := seededStore(t)
	c := newCoordinator(store, billing.FileWriter{Dir: t.TempDir()})
	ctx := context.Background()

	if _, err := c.Export(ctx, billing.Filter{All: true}, billing.Options{Mark: true}); err != nil {
		t.Fatalf("first export: %v", err)
	}
	res, err := c.Export(ctx, billing.Filter{All: true}, billing.Options{Mark: true})
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if len(res.Tickets) != 0 || res.Path != "" || res.Marked != 0 {
		t.Fatalf("expected empty batch, got %+v", res)
	}

	res, err = c.Export(ctx, billing.Filter{All: true}, billing.Options{Force: true})
	if err != nil {
		t.Fatalf("forced export: %v", err)
	}
	if len(res.Tickets) != 2 {
		t.Fatalf("expected forced re-export of 2 tickets, got %v", res.Tickets)
	}
}

func TestExportFilters(t *testing.T) {
	cases := []struct {
		name   string
		filter billing.Filter
		want   []string
	}{
		{"customer case-insensitive", billing.Filter{Customer: "acme"}, []string{"250305001"}},
		{"date range inclusive", billing.Filter{DateFrom: "2025-03-06", DateTo: "2025-03-06"}, []string{"250306001"}},
		{"date from only", billing.Filter{DateFrom: "2025-03-05"}, []string{"250305001", "250306001"}},
		{"explicit list", billing.Filter{Tickets: []string{"250306001", "999999999"}}, []string{"250306001"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newCoordinator(seededStore(t), billing.FileWriter{Dir: t.TempDir()})
			res, err := c.Export(context.Background(), tc.filter, billing.Options{})
			if err != nil {
				t.Fatalf("export: %v", err)
			}
			if len(res.Tickets) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, res.Tickets)
			}
			for i := range tc.want {
				if res.Tickets[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, res.Tickets)
				}
			}
		})
	}
}

func TestExportRequiresFilter(t *testing.T) {
	c := newCoordinator(seededStore(t), billing.FileWriter{Dir: t.TempDir()})
	if _, err := c.Export(context.Background(), billing.Filter{}, billing.Options{}); !errors.Is(err, billing.ErrNoFilter) {
		t.Fatalf("expected ErrNoFilter, got %v", err)
	}
	if _, err := c.Export(context.Background(), billing.Filter{DateFrom: "03/06/2025"}, billing.Options{}); err == nil {
		t.Fatalf("expected bad date to be rejected")
	}
}

type failingWriter struct{}

func (failingWriter) WriteBatch(context.Context, string, []billing.Record) (string, error) {
	return "", errors.New("disk full")
}

func TestExportWriteFailureMarksNothing(t *testing.T) {
	store := seededStore(t)
	c := newCoordinator(store, failingWriter{})

	_, err := c.Export(context.Background(), billing.Filter{All: true}, billing.Options{Mark: true})
	var se *ticket.StoreError
	if !errors.As(err, &se) || se.Op != "write_batch" {
		t.Fatalf("expected write_batch StoreError, got %v", err)
	}

	completed, err := store.List(context.Background(), ticket.CollectionCompleted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, tk := range completed {
		if tk.Exported {
			t.Fatalf("ticket %s marked exported after a failed write", tk.Number)
		}
	}
}

type failingMarker struct {
	*ticket.InMemoryStore
}

func (failingMarker) MarkExported(context.Context, []string, ticket.ExportMark) error {
	return errors.New("sheet quota exceeded")
}

func TestExportMarkFailureIsStoreError(t *testing.T) {
	c := newCoordinator(failingMarker{seededStore(t)}, billing.FileWriter{Dir: t.TempDir()})

	res, err := c.Export(context.Background(), billing.Filter{All: true}, billing.Options{Mark: true})
	var se *ticket.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if res.Path == "" || res.Marked != 0 {
		t.Fatalf("expected written file and nothing marked, got %+v", res)
	}
}

func TestExportEndToEnd(t *testing.T) {
	store := ticket.NewInMemoryStore()
	now := time.Date(2025, 3, 6, 8, 0, 0, 0, time.UTC)
	engine := &ticket.Engine{Store: store, Now: func() time.Time { return now }}
	ctx := context.Background()

	created, _, err := engine.Create(ctx, ticket.CreateTicketRequest{
		Customer: "Acme", Pickup: "10-15-052-20W4", Delivery: "05-22-053-19W4",
		Product: "Crude Oil", Driver: "Brant Fandrey", Truck: "Unit 1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Number != "250306001" {
		t.Fatalf("expected 250306001, got %s", created.Number)
	}
	if _, err := engine.Assign(ctx, created.Number); err != nil {
		t.Fatalf("assign: %v", err)
	}

	stamp := func(d time.Duration) *ticket.Timestamp {
		v := ticket.TimestampOf(now.Add(d))
		return &v
	}
	vol, yes := 85.5, true
	done, _, err := engine.Complete(ctx, created.Number, ticket.CompletionInput{
		ArriveLoad:    stamp(0),
		DepartLoad:    stamp(time.Hour),
		ArriveOffload: stamp(3 * time.Hour),
		DepartOffload: stamp(4 * time.Hour),
		ActualVolume:  &vol,
		HazardCheck:   &yes,
		Signature:     &yes,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Hours != 4 || done.WaitTime != 2 || done.State != ticket.StateCompleted {
		t.Fatalf("unexpected completion: hours=%v wait=%v status=%s", done.Hours, done.WaitTime, done.State)
	}

	c := newCoordinator(store, billing.FileWriter{Dir: t.TempDir()})
	res, err := c.Export(ctx, billing.Filter{All: true}, billing.Options{Mark: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected one row, got %d", len(res.Records))
	}
	row := res.Records[0]
	if row.Hours != "4.00" || row.ActualVol != "85.50" || row.Operator != "Fandrey, Brant" {
		t.Fatalf("unexpected row %+v", row)
	}
}
