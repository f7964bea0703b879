package ticket

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	OperationsTotal *prometheus.CounterVec
	RejectedTotal   *prometheus.CounterVec
	WarningsTotal   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ticket_operations_total", Help: "Lifecycle operations by outcome."},
			[]string{"operation", "result"},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ticket_validation_rejected_total", Help: "Validation failures by stage and field."},
			[]string{"stage", "field"},
		),
		WarningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ticket_validation_warnings_total", Help: "Validation warnings by stage and field."},
			[]string{"stage", "field"},
		),
	}
	reg.MustRegister(m.OperationsTotal, m.RejectedTotal, m.WarningsTotal)
	return m
}

func (m *Metrics) op(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) result(r Result) {
	if m == nil {
		return
	}
	for _, i := range r.Errors {
		m.RejectedTotal.WithLabelValues(string(r.Stage), i.Field).Inc()
	}
	for _, i := range r.Warnings {
		m.WarningsTotal.WithLabelValues(string(r.Stage), i.Field).Inc()
	}
}
