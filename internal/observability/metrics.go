package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
)

// Metrics counts ledger edits, limit checks, and raised warnings. It implements app.Observer.
type Metrics struct {
	stageUpdates *prometheus.CounterVec
	limitChecks  *prometheus.CounterVec
	projected    prometheus.Histogram
	warnings     *prometheus.CounterVec
}

var _ app.Observer = (*Metrics)(nil)

// NewMetrics builds the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldwork",
			Subsystem: "progress",
			Name:      "stage_updates_total",
			Help:      "Stage edits by assignment phase and outcome.",
		}, []string{"phase", "outcome"}),
		limitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldwork",
			Subsystem: "honor",
			Name:      "limit_checks_total",
			Help:      "Monthly honor limit validations by outcome.",
		}, []string{"outcome"}),
		projected: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fieldwork",
			Subsystem: "honor",
			Name:      "projected_ratio",
			Help:      "Projected monthly honor as a fraction of the limit.",
			Buckets:   []float64{0.25, 0.5, 0.75, 0.9, 1, 1.1, 1.5, 2},
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldwork",
			Subsystem: "status",
			Name:      "warnings_total",
			Help:      "Warnings raised while deriving activity status.",
		}, []string{"kind", "phase"}),
	}
	reg.MustRegister(m.stageUpdates, m.limitChecks, m.projected, m.warnings)
	return m
}

// StageUpdate records one stage edit attempt.
func (m *Metrics) StageUpdate(phase domain.Phase, err error) {
	m.stageUpdates.WithLabelValues(string(phase), stageOutcome(err)).Inc()
}

// LimitCheck records one limit validation.
func (m *Metrics) LimitCheck(result app.LimitResult, err error) {
	switch {
	case err != nil:
		m.limitChecks.WithLabelValues("error").Inc()
		return
	case result.IsOverLimit:
		m.limitChecks.WithLabelValues("over_limit").Inc()
	default:
		m.limitChecks.WithLabelValues("within_limit").Inc()
	}
	if result.Limit > 0 {
		m.projected.Observe(float64(result.ProjectedTotal) / float64(result.Limit))
	}
}

// Warnings records every raised warning.
func (m *Metrics) Warnings(warnings []domain.Warning) {
	for _, w := range warnings {
		m.warnings.WithLabelValues(string(w.Kind), string(w.Phase)).Inc()
	}
}

func stageOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrInsufficientUpstream):
		return "insufficient_upstream"
	case errors.Is(err, domain.ErrDerivedStageImmutable):
		return "derived_stage"
	case errors.Is(err, domain.ErrInvalidValue), errors.Is(err, domain.ErrUnknownStage):
		return "invalid"
	default:
		return "error"
	}
}
