package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/visa2any/fareguard/internal/dataType"
)

// Metrics exports decision counts and the protective-state gauges.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// RegisterMetrics wires the engine to a prometheus registry. The
// gauges read live store counts on scrape.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) error {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fareguard",
			Name:      "decisions_total",
			Help:      "Classification decisions by action.",
		}, []string{"action", "cached"}),
	}

	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"blocked_clients", "Clients currently on the deny-set.", func() float64 {
			return float64(e.stores.Blocklist.Count())
		}},
		{"suspicious_clients", "Clients with a non-zero suspicion score.", func() float64 {
			return float64(e.stores.Ledger.Count())
		}},
		{"pending_challenges", "Issued challenges awaiting verification.", func() float64 {
			return float64(e.challenges.Pending())
		}},
	}

	if err := reg.Register(m.decisions); err != nil {
		return err
	}
	for _, g := range gauges {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fareguard",
			Name:      g.name,
			Help:      g.help,
		}, g.fn)
		if err := reg.Register(gauge); err != nil {
			return err
		}
	}

	e.metrics = m
	return nil
}

func (m *Metrics) countDecision(action dataType.Action, cached bool) {
	label := "false"
	if cached {
		label = "true"
	}
	m.decisions.WithLabelValues(string(action), label).Inc()
}
