package outbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickshauling/ticketdrop/internal/outbox"
	"github.com/rickshauling/ticketdrop/internal/shared/events"
)

type fakeRepo struct {
	pending []outbox.Record
	sent    []int64
	failed  map[int64]time.Time
	lag     float64
}

func (f *fakeRepo) ClaimPending(_ context.Context, limit int) ([]outbox.Record, error) {
	n := min(limit, len(f.pending))
	out := f.pending[:n]
	f.pending = f.pending[n:]
	for i := range out {
		out[i].Attempts++
	}
	return out, nil
}

func (f *fakeRepo) MarkSent(_ context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id int64, next time.Time, _ string) error {
	if f.failed == nil {
		f.failed = map[int64]time.Time{}
	}
	f.failed[id] = next
	return nil
}

func (f *fakeRepo) RequeueStuck(context.Context, time.Duration) (int64, error) { return 0, nil }

func (f *fakeRepo) LagSeconds(context.Context) (float64, error) { return f.lag, nil }

type fakePublisher struct {
	got  []events.Envelope
	fail map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, env events.Envelope) error {
	if p.fail[env.AggregateID] {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, env)
	return nil
}

func TestRelayTick(t *testing.T) {
	repo := &fakeRepo{
		pending: []outbox.Record{
			{ID: 1, EventID: "e1", EventType: events.TicketCreated, AggregateID: "250306001", Payload: []byte(`{}`)},
			{ID: 2, EventID: "e2", EventType: events.TicketCompleted, AggregateID: "250306002", Payload: []byte(`{}`)},
			{ID: 3, EventID: "e3", EventType: events.TicketCreated, AggregateID: "250306003", Payload: []byte(`{}`)},
		},
		lag: 12,
	}
	pub := &fakePublisher{fail: map[string]bool{"250306002": true}}
	now := time.Date(2025, 3, 6, 9, 0, 0, 0, time.UTC)

	m := outbox.NewMetrics(prometheus.NewRegistry())
	r := &outbox.Relay{
		Repo:      repo,
		Publisher: pub,
		Metrics:   m,
		Log:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		BatchSize: 10,
		Now:       func() time.Time { return now },
	}

	if sent := r.Tick(context.Background()); sent != 2 {
		t.Fatalf("expected 2 sent, got %d", sent)
	}
	if len(repo.sent) != 2 || repo.sent[0] != 1 || repo.sent[1] != 3 {
		t.Fatalf("unexpected sent ids %v", repo.sent)
	}
	if next, ok := repo.failed[2]; !ok || !next.Equal(now.Add(time.Second)) {
		t.Fatalf("expected row 2 retried after 1s, got %v", repo.failed)
	}
	if pub.got[0].EventID != "e1" || pub.got[0].AggregateID != "250306001" {
		t.Fatalf("unexpected envelope %+v", pub.got[0])
	}

	if v := testutil.ToFloat64(m.PublishedTotal.WithLabelValues(events.TicketCreated)); v != 2 {
		t.Fatalf("expected 2 published ticket.created, got %v", v)
	}
	if v := testutil.ToFloat64(m.FailedTotal.WithLabelValues(events.TicketCompleted)); v != 1 {
		t.Fatalf("expected 1 failed ticket.completed, got %v", v)
	}
	if v := testutil.ToFloat64(m.LagSeconds); v != 12 {
		t.Fatalf("expected lag 12, got %v", v)
	}
}

func TestRelayTickWithoutMetricsOrLogger(t *testing.T) {
	repo := &fakeRepo{pending: []outbox.Record{
		{ID: 1, EventID: "e1", EventType: events.TicketCreated, AggregateID: "250306001", Payload: []byte(`{}`)},
		{ID: 2, EventID: "e2", EventType: events.TicketCreated, AggregateID: "250306002", Payload: []byte(`{}`)},
	}}
	pub := &fakePublisher{fail: map[string]bool{"250306002": true}}
	r := &outbox.Relay{Repo: repo, Publisher: pub, BatchSize: 10}

	if sent := r.Tick(context.Background()); sent != 1 {
		t.Fatalf("expected 1 sent, got %d", sent)
	}
	if _, ok := repo.failed[2]; !ok {
		t.Fatalf("expected row 2 marked failed, got %v", repo.failed)
	}
}

func TestBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		0:  time.Second,
		1:  time.Second,
		2:  2 * time.Second,
		4:  8 * time.Second,
		20: 5 * time.Minute,
	}
	for attempts, want := range cases {
		if got := outbox.Backoff(attempts); got != want {
			t.Fatalf("Backoff(%d) = %v, want %v", attempts, got, want)
		}
	}
}
