package observability

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
)

func TestMetricsStageUpdates(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.StageUpdate(domain.PhaseDataCollection, nil)
	m.StageUpdate(domain.PhaseDataCollection, nil)
	m.StageUpdate(domain.PhaseDataCollection, &domain.StageError{Stage: domain.StageReviewed, Err: domain.ErrInsufficientUpstream})
	m.StageUpdate(domain.PhaseProcessingAnalysis, fmt.Errorf("wrapped: %w", domain.ErrDerivedStageImmutable))
	m.StageUpdate(domain.PhaseProcessingAnalysis, errors.New("disk full"))

	cases := []struct {
		phase   domain.Phase
		outcome string
		want    float64
	}{
		{domain.PhaseDataCollection, "accepted", 2},
		{domain.PhaseDataCollection, "insufficient_upstream", 1},
		{domain.PhaseProcessingAnalysis, "derived_stage", 1},
		{domain.PhaseProcessingAnalysis, "error", 1},
	}
	for _, tc := range cases {
		got := testutil.ToFloat64(m.stageUpdates.WithLabelValues(string(tc.phase), tc.outcome))
		if got != tc.want {
			t.Fatalf("stage_updates_total{%s,%s} = %v, want %v", tc.phase, tc.outcome, got, tc.want)
		}
	}
}

func TestMetricsLimitChecksAndWarnings(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.LimitCheck(app.LimitResult{Limit: 3000000, ProjectedTotal: 3050000, IsOverLimit: true}, nil)
	m.LimitCheck(app.LimitResult{Limit: 3000000, ProjectedTotal: 1000000}, nil)
	m.LimitCheck(app.LimitResult{}, domain.ErrInsufficientScheduleInfo)

	if got := testutil.ToFloat64(m.limitChecks.WithLabelValues("over_limit")); got != 1 {
		t.Fatalf("over_limit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.limitChecks.WithLabelValues("within_limit")); got != 1 {
		t.Fatalf("within_limit = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.limitChecks.WithLabelValues("error")); got != 1 {
		t.Fatalf("error = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.projected); got != 1 {
		t.Fatalf("expected one projected ratio series, got %d", got)
	}

	m.Warnings([]domain.Warning{
		{Kind: domain.WarningLateReport, Phase: domain.PhasePreparation},
		{Kind: domain.WarningStaleProgress, Phase: domain.PhaseDataCollection},
		{Kind: domain.WarningLateReport, Phase: domain.PhasePreparation},
	})
	if got := testutil.ToFloat64(m.warnings.WithLabelValues(string(domain.WarningLateReport), string(domain.PhasePreparation))); got != 2 {
		t.Fatalf("late report warnings = %v, want 2", got)
	}
}

func TestNewMetricsRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}
