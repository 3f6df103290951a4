package rerun

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts schema probes, scans and the batches they yield.
//
// A nil *Metrics records nothing.
type Metrics struct {
	SchemaProbes *prometheus.CounterVec
	Scans        prometheus.Counter
	Batches      prometheus.Counter
	Rows         prometheus.Counter
	Errors       *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on reg, if reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SchemaProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rerun",
				Name:      "schema_probes_total",
				Help:      "Total number of schema probe RPCs",
			},
			[]string{"result"}, // "ok" / "error"
		),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rerun",
			Name:      "scans_total",
			Help:      "Total number of opened scan streams",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rerun",
			Name:      "batches_total",
			Help:      "Total number of decoded record batches",
		}),
		Rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rerun",
			Name:      "rows_total",
			Help:      "Total number of rows handed to consumers",
		}),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rerun",
				Name:      "errors_total",
				Help:      "Total number of failed schema or scan operations",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.SchemaProbes, m.Scans, m.Batches, m.Rows, m.Errors)
	}
	return m
}

func (m *Metrics) probe(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SchemaProbes.WithLabelValues("error").Inc()
		m.Errors.WithLabelValues(KindOf(err)).Inc()
		return
	}
	m.SchemaProbes.WithLabelValues("ok").Inc()
}

func (m *Metrics) scan() {
	if m == nil {
		return
	}
	m.Scans.Inc()
}

func (m *Metrics) batch(rows int64) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.Rows.Add(float64(rows))
}

func (m *Metrics) failure(err error) {
	if m == nil || err == nil {
		return
	}
	m.Errors.WithLabelValues(KindOf(err)).Inc()
}
