package harness

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects coordinator statistics. A nil *Metrics records nothing.
type Metrics struct {
	steps        prometheus.Counter
	batches      prometheus.Counter
	stepDuration prometheus.Histogram
	laneResults  *prometheus.CounterVec
	phase        prometheus.Gauge
}

// NewMetrics creates the collectors; names are prefixed with namespace
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Logical time steps completed.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Edit batches consumed, including coalesced ones.",
		}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time from applying edits to collecting every lane's results.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		laneResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lane_results_total",
			Help:      "Result records reported per lane.",
		}, []string{"lane"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current coordinator phase.",
		}),
	}
}

// RegisterAll registers every collector with register
func (m *Metrics) RegisterAll(register prometheus.Registerer) error {
	if m == nil || register == nil {
		return nil
	}
	for _, c := range m.toList() {
		if err := register.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterAll removes every collector from register
func (m *Metrics) UnregisterAll(register prometheus.Registerer) {
	if m == nil || register == nil {
		return
	}
	for _, c := range m.toList() {
		register.Unregister(c)
	}
}

func (m *Metrics) toList() []prometheus.Collector {
	return []prometheus.Collector{m.steps, m.batches, m.stepDuration, m.laneResults, m.phase}
}

func (m *Metrics) observePhase(p Phase) {
	if m == nil {
		return
	}
	m.phase.Set(float64(p))
}

func (m *Metrics) observeLane(lane, results int) {
	if m == nil {
		return
	}
	m.laneResults.WithLabelValues(strconv.Itoa(lane)).Add(float64(results))
}

func (m *Metrics) observeStep(batches int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.steps.Inc()
	m.batches.Add(float64(batches))
	m.stepDuration.Observe(elapsed.Seconds())
}
