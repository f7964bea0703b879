package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/rickshauling/ticketdrop/internal/billing"
	"github.com/rickshauling/ticketdrop/internal/ticket"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"--customer", "Acme", "--tickets", "250306001, 250306002,", "--no-mark", "--force"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.filter.Customer != "Acme" || len(o.filter.Tickets) != 2 || o.filter.Tickets[1] != "250306002" {
		t.Fatalf("unexpected filter %+v", o.filter)
	}
	if o.opts.Mark || !o.opts.Force {
		t.Fatalf("unexpected options %+v", o.opts)
	}

	o, err = parseFlags([]string{"--export-all", "--output", "batch.csv"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !o.opts.Mark || !filepath.IsAbs(o.opts.Output) {
		t.Fatalf("expected marking on and absolute output, got %+v", o.opts)
	}
}

func TestParseFlagsRequiresFilter(t *testing.T) {
	var stderr bytes.Buffer
	if _, err := parseFlags(nil, &stderr); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(stderr.String(), "export-all") {
		t.Fatalf("expected flag help on stderr, got %q", stderr.String())
	}
	if code := run(nil, io.Discard, io.Discard); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if _, err := parseFlags([]string{"--help"}, io.Discard); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func newCoordinator(t *testing.T) (*billing.Coordinator, *ticket.InMemoryStore) {
	t.Helper()
	store := ticket.NewInMemoryStore()
	err := store.Relocate(context.Background(), ticket.Ticket{
		Number: "250306001", Date: "2025-03-06", Customer: "Acme", Driver: "Brant Fandrey",
		State: ticket.StateCompleted, ArriveLoad: "2025-03-06T08:00:00", ActualVolume: 85.5, Hours: 4,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &billing.Coordinator{
		Source: store,
		Writer: billing.FileWriter{Dir: t.TempDir()},
		Now:    func() time.Time { return time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC) },
	}, store
}

func TestExecuteHumanOutput(t *testing.T) {
	c, _ := newCoordinator(t)
	o := cliOptions{filter: billing.Filter{All: true}, opts: billing.Options{Mark: true}}

	var out bytes.Buffer
	if err := execute(context.Background(), c, o, &out); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"Found 1 tickets to export", "AXON_Export_20250307_090000.csv", "Marked 1 tickets as exported"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := execute(context.Background(), c, o, &out); err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != "No tickets to export" {
		t.Fatalf("expected empty run, got %q", out.String())
	}
}

func TestExecuteJSONOutput(t *testing.T) {
	c, store := newCoordinator(t)
	o := cliOptions{filter: billing.Filter{Customer: "acme"}, opts: billing.Options{}, json: true}

	var out bytes.Buffer
	if err := execute(context.Background(), c, o, &out); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var res billing.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(res.Tickets) != 1 || res.Marked != 0 || res.BatchID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	got, _ := store.Get(context.Background(), ticket.CollectionCompleted, "250306001")
	if got.Exported {
		t.Fatalf("expected ticket left unmarked without Mark")
	}
}
