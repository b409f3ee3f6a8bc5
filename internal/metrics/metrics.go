// Package metrics exposes prometheus metrics for referral decisions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/referral-cli/internal/engine"
	"github.com/sells-group/referral-cli/internal/model"
)

// Metrics records decision outcomes and evaluation latency. A nil *Metrics
// records nothing.
type Metrics struct {
	// Decision outcomes by recommendation and gate ("none" when scored)
	DecisionOutcome *prometheus.CounterVec

	// Category results that fell back to the neutral score
	NeutralFallback *prometheus.CounterVec

	// Escalations by result: "sent", "failed" or "skipped"
	Escalations *prometheus.CounterVec

	// Single-referral evaluation latency
	EvaluateLatency prometheus.Histogram

	// Batch size per batch evaluation
	BatchSize prometheus.Histogram
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DecisionOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_decision_outcomes_total",
			Help: "Total referral decisions by recommendation and gate",
		}, []string{"recommendation", "gate"}),

		NeutralFallback: f.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_neutral_scores_total",
			Help: "Category scores that fell back to neutral because referral data was missing",
		}, []string{"category"}),

		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_escalations_total",
			Help: "MSW escalations by delivery result",
		}, []string{"result"}),

		EvaluateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_evaluate_duration_seconds",
			Help:    "Duration of a single referral evaluation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_batch_size",
			Help:    "Number of referrals per batch evaluation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		}),
	}
}

// ObserveDecision records the outcome of one decision.
func (m *Metrics) ObserveDecision(d *model.ReferralDecisionFactors) {
	if m == nil || d == nil {
		return
	}
	gate := "none"
	if d.Gate != nil {
		gate = string(d.Gate.Gate)
	}
	m.DecisionOutcome.WithLabelValues(string(d.Overall.Recommendation), gate).Inc()

	for category, c := range map[string]model.CategoryScore{
		"geographic": d.Geographic.CategoryScore,
		"insurance":  d.Insurance.CategoryScore,
		"clinical":   d.Clinical.CategoryScore,
		"capacity":   d.Capacity.CategoryScore,
		"quality":    d.Quality.CategoryScore,
	} {
		for _, n := range c.Notes {
			if n == engine.NoteInsufficientData {
				m.NeutralFallback.WithLabelValues(category).Inc()
				break
			}
		}
	}
}

// ObserveEvaluateLatency records the duration of one evaluation.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// ObserveBatch records the size of one batch.
func (m *Metrics) ObserveBatch(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}

// IncrementEscalation records an escalation result.
func (m *Metrics) IncrementEscalation(result string) {
	if m != nil {
		m.Escalations.WithLabelValues(result).Inc()
	}
}
