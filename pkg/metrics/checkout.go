package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartWriteMetrics records outcomes of cart line writes sent to the portal backend.
type CartWriteMetrics struct {
	writes     *prometheus.CounterVec
	coalesced  prometheus.Counter
	reconciles *prometheus.CounterVec
}

// NewCartWriteMetrics registers the cart write collectors on the provided registerer.
func NewCartWriteMetrics(reg prometheus.Registerer) *CartWriteMetrics {
	if reg == nil {
		return &CartWriteMetrics{}
	}
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_line_writes_total",
		Help: "Cart line writes sent to the backend by operation and outcome.",
	}, []string{"op", "outcome"})
	coalesced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_line_writes_coalesced_total",
		Help: "Quantity writes superseded by a newer value before being sent.",
	})
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_reconciliations_total",
		Help: "Reconciliations run after a failed cart write, by strategy.",
	}, []string{"strategy"})
	reg.MustRegister(writes, coalesced, reconciles)
	return &CartWriteMetrics{
		writes:     writes,
		coalesced:  coalesced,
		reconciles: reconciles,
	}
}

// ObserveWrite counts one backend write for op ("set_quantity", "remove") with its outcome.
func (c *CartWriteMetrics) ObserveWrite(op string, err error) {
	if c == nil || c.writes == nil {
		return
	}
	c.writes.WithLabelValues(normalizeLabel(op), outcomeLabel(err)).Inc()
}

// IncCoalesced counts a pending quantity write replaced by a newer one.
func (c *CartWriteMetrics) IncCoalesced() {
	if c == nil || c.coalesced == nil {
		return
	}
	c.coalesced.Inc()
}

// IncReconcile counts a reconciliation ("refetch" or "revert").
func (c *CartWriteMetrics) IncReconcile(strategy string) {
	if c == nil || c.reconciles == nil {
		return
	}
	c.reconciles.WithLabelValues(normalizeLabel(strategy)).Inc()
}

// SettlementMetrics records purchase settlement attempts.
type SettlementMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement collectors on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Duration of settlement calls against the backend in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outcomes_total",
		Help: "Settlement attempts by purchase kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(duration, outcomes)
	return &SettlementMetrics{
		duration: duration,
		outcomes: outcomes,
	}
}

// ObserveDuration records the backend round trip for a settlement of the given kind.
func (s *SettlementMetrics) ObserveDuration(kind string, d time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(kind)).Observe(d.Seconds())
}

// IncOutcome counts a settlement outcome ("settled", "failed", "replayed", "rejected").
func (s *SettlementMetrics) IncOutcome(kind, outcome string) {
	if s == nil || s.outcomes == nil {
		return
	}
	s.outcomes.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
