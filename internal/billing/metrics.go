package billing

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	BatchesTotal    *prometheus.CounterVec
	ExportedTotal   prometheus.Counter
	SkippedTotal    *prometheus.CounterVec
	LastBatchTicket prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "billing_export_batches_total", Help: "Export runs by outcome."},
			[]string{"result"},
		),
		ExportedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "billing_exported_tickets_total", Help: "Tickets written to an export batch."},
		),
		SkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "billing_skipped_tickets_total", Help: "Selected tickets left out of a batch, by failing field."},
			[]string{"field"},
		),
		LastBatchTicket: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "billing_last_batch_tickets", Help: "Tickets in the most recent batch."},
		),
	}
	reg.MustRegister(m.BatchesTotal, m.ExportedTotal, m.SkippedTotal, m.LastBatchTicket)
	return m
}

func (m *Metrics) batch(result string, n int) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.ExportedTotal.Add(float64(n))
		m.LastBatchTicket.Set(float64(n))
	}
}

func (m *Metrics) skipped(field string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(field).Inc()
}
