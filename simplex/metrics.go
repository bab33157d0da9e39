package simplex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"q.log/steepest/pricing"
)

const (
	metricsNamespace = "steepest"
	solverSubsystem  = "simplex"
)

// Metrics of the primal driver and its pricer. A nil *Metrics records
// nothing.
type Metrics struct {
	Iterations       prometheus.Counter
	Flips            prometheus.Counter
	Refactorizations prometheus.Counter
	Flagged          prometheus.Counter
	// Rejected counts pivots undone after the basis update failed.
	Rejected prometheus.Counter

	// Strategy is 1 for the pricing strategy in force.
	// Labels: strategy
	Strategy              *prometheus.GaugeVec
	WeightInitializations prometheus.Gauge
	WeightRecoveries      prometheus.Gauge
	Objective             prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: solverSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: solverSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		Iterations:       counter("iterations_total", "Simplex iterations, pivots and bound flips"),
		Flips:            counter("bound_flips_total", "Iterations that moved the entering variable to its other bound"),
		Refactorizations: counter("refactorizations_total", "Basis factorizations"),
		Flagged:          counter("flagged_total", "Entering variables flagged after a bad pivot"),
		Rejected:         counter("rejected_pivots_total", "Pivots undone after the basis update failed"),
		Strategy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: solverSubsystem,
			Name:      "pricing_strategy",
			Help:      "Pricing strategy in force",
		}, []string{"strategy"}),
		WeightInitializations: gauge("weight_initializations", "Pricing weight initializations in the last solve"),
		WeightRecoveries:      gauge("weight_recoveries", "Pricing weight reinitializations after drift in the last solve"),
		Objective:             gauge("objective", "Objective value of the last solve"),
	}
}

func (m *Metrics) iteration(flip bool) {
	if m == nil {
		return
	}
	m.Iterations.Inc()
	if flip {
		m.Flips.Inc()
	}
}

func (m *Metrics) refactorization() {
	if m == nil {
		return
	}
	m.Refactorizations.Inc()
}

func (m *Metrics) flagged(rejected bool) {
	if m == nil {
		return
	}
	m.Flagged.Inc()
	if rejected {
		m.Rejected.Inc()
	}
}

func (m *Metrics) observePricing(stats pricing.Stats) {
	if m == nil {
		return
	}
	m.Strategy.Reset()
	m.Strategy.WithLabelValues(stats.Strategy.String()).Set(1)
	m.WeightInitializations.Set(float64(stats.Initializations))
	m.WeightRecoveries.Set(float64(stats.Recoveries))
}

func (m *Metrics) objective(value float64) {
	if m == nil {
		return
	}
	m.Objective.Set(value)
}
