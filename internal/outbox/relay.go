package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickshauling/ticketdrop/internal/shared/events"
)

type Repo interface {
	ClaimPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error
	RequeueStuck(ctx context.Context, timeout time.Duration) (int64, error)
	LagSeconds(ctx context.Context) (float64, error)
}

type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

const maxBackoff = 5 * time.Minute

// Backoff doubles from one second per attempt, capped at five minutes.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Second
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// Relay moves claimed outbox rows onto the broker. Delivery is at least
// once; consumers dedupe on event_id. Metrics and Log may be nil.
type Relay struct {
	Repo              Repo
	Publisher         Publisher
	Metrics           *Metrics
	Log               *slog.Logger
	BatchSize         int
	ProcessingTimeout time.Duration
	Now               func() time.Time

	unregistered *Metrics
}

func (r *Relay) metrics() *Metrics {
	if r.Metrics != nil {
		return r.Metrics
	}
	if r.unregistered == nil {
		r.unregistered = NewMetrics(prometheus.NewRegistry())
	}
	return r.unregistered
}

func (r *Relay) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.New(slog.DiscardHandler)
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run polls every interval until ctx is done.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one poll: requeue stuck rows, claim a batch, publish it.
// It returns how many rows were published.
func (r *Relay) Tick(ctx context.Context) int {
	m := r.metrics()
	log := r.log()
	m.PollsTotal.Inc()

	if n, err := r.Repo.RequeueStuck(ctx, r.ProcessingTimeout); err != nil {
		m.RequeueErrorsTotal.Inc()
		log.Error("outbox_requeue_failed", slog.String("err", err.Error()))
	} else if n > 0 {
		m.RequeuedTotal.Add(float64(n))
		log.Warn("outbox_requeued_stuck", slog.Int64("count", n))
	}

	recs, err := r.Repo.ClaimPending(ctx, r.BatchSize)
	if err != nil {
		m.ClaimErrorsTotal.Inc()
		log.Error("outbox_claim_failed", slog.String("err", err.Error()))
		return 0
	}
	if len(recs) > 0 {
		m.ClaimedTotal.Add(float64(len(recs)))
	}

	sent := 0
	for _, rec := range recs {
		if err := r.Publisher.Publish(ctx, rec.Envelope()); err != nil {
			m.FailedTotal.WithLabelValues(rec.EventType).Inc()
			retryAt := r.now().Add(Backoff(rec.Attempts))
			log.Warn("outbox_publish_failed",
				slog.Int64("id", rec.ID),
				slog.String("event_type", rec.EventType),
				slog.String("aggregate_id", rec.AggregateID),
				slog.Int("attempts", rec.Attempts),
				slog.Time("next_retry_at", retryAt),
				slog.String("err", err.Error()),
			)
			if err := r.Repo.MarkFailed(ctx, rec.ID, retryAt, err.Error()); err != nil {
				m.MarkErrorsTotal.Inc()
				log.Error("outbox_mark_failed_failed", slog.Int64("id", rec.ID), slog.String("err", err.Error()))
			}
			continue
		}

		if err := r.Repo.MarkSent(ctx, rec.ID); err != nil {
			m.MarkErrorsTotal.Inc()
			log.Error("outbox_mark_sent_failed", slog.Int64("id", rec.ID), slog.String("err", err.Error()))
			continue
		}
		m.PublishedTotal.WithLabelValues(rec.EventType).Inc()
		sent++
	}

	if lag, err := r.Repo.LagSeconds(ctx); err == nil {
		m.LagSeconds.Set(lag)
	}
	return sent
}
