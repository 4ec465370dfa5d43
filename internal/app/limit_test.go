package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hylla/fieldwork/internal/domain"
)

// seedActivity stores an activity paying workerID honor in the activity's payment month.
func seedActivity(t *testing.T, repo *fakeRepo, id string, period *domain.Period, schedule domain.Schedule, workerID string, units int64) domain.Activity {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := domain.NewActivity(domain.ActivityInput{
		ID:                 id,
		Name:               id,
		Schedule:           schedule,
		PaymentPeriod:      period,
		HonorariumSettings: []domain.HonorariumSetting{{TaskType: domain.TaskTypeProcessing, UnitPrice: 1000}},
	}, now)
	if err != nil {
		t.Fatalf("NewActivity() error = %v", err)
	}
	if _, err := a.AddAssignment(domain.WorkerAssignmentInput{
		ID:       id + "-as",
		WorkerID: workerID,
		Phase:    domain.PhaseProcessingAnalysis,
		Units:    map[domain.TaskType]int64{domain.TaskTypeProcessing: units},
	}, now); err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	if err := repo.CreateActivity(context.Background(), a); err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}
	return a
}

func TestHonorLimitValidatorScenario(t *testing.T) {
	repo := newFakeRepo()
	limit := int64(3000000)
	repo.limit = &limit
	march := &domain.Period{Month: time.March, Year: 2026}
	seedActivity(t, repo, "a1", march, domain.Schedule{}, "w1", 1800)
	seedActivity(t, repo, "a2", nil, domain.Schedule{DataCollection: domain.DateRange{Start: date(2026, 3, 5)}}, "w1", 1000)
	seedActivity(t, repo, "a3", &domain.Period{Month: time.April, Year: 2026}, domain.Schedule{}, "w1", 9000)
	seedActivity(t, repo, "a4", march, domain.Schedule{}, "w2", 9000)
	seedActivity(t, repo, "editing", march, domain.Schedule{}, "w1", 5000)

	v := NewHonorLimitValidator(repo, repo, 0)
	got, err := v.Validate(context.Background(), LimitCheck{
		WorkerID:          "w1",
		Period:            *march,
		ProposedHonor:     250000,
		ExcludeActivityID: "editing",
	})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Limit != 3000000 || got.ExistingTotal != 2800000 || got.ProjectedTotal != 3050000 || !got.IsOverLimit {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Headroom() != 0 {
		t.Fatalf("expected zero headroom, got %d", got.Headroom())
	}
}

func TestHonorLimitValidatorBoundaryAndMonotonicity(t *testing.T) {
	repo := newFakeRepo()
	march := domain.Period{Month: time.March, Year: 2026}
	seedActivity(t, repo, "a1", &march, domain.Schedule{}, "w1", 2000)
	v := NewHonorLimitValidator(repo, repo, 3000000)

	equal, err := v.Validate(context.Background(), LimitCheck{WorkerID: "w1", Period: march, ProposedHonor: 1000000})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if equal.ProjectedTotal != 3000000 || equal.IsOverLimit {
		t.Fatalf("expected equality not over limit, got %+v", equal)
	}
	over, _ := v.Validate(context.Background(), LimitCheck{WorkerID: "w1", Period: march, ProposedHonor: 1000001})
	if !over.IsOverLimit {
		t.Fatalf("expected over limit one unit past, got %+v", over)
	}

	prev := int64(-1)
	for proposed := int64(0); proposed <= 2000000; proposed += 250000 {
		r, err := v.Validate(context.Background(), LimitCheck{WorkerID: "w1", Period: march, ProposedHonor: proposed})
		if err != nil {
			t.Fatalf("Validate(%d) error = %v", proposed, err)
		}
		if r.ProjectedTotal < prev {
			t.Fatalf("projected total decreased at proposed=%d", proposed)
		}
		if r.IsOverLimit != (r.ProjectedTotal > r.Limit) {
			t.Fatalf("inconsistent over-limit flag %+v", r)
		}
		prev = r.ProjectedTotal
	}
}

func TestHonorLimitValidatorRejections(t *testing.T) {
	repo := newFakeRepo()
	v := NewHonorLimitValidator(repo, repo, 100)
	march := domain.Period{Month: time.March, Year: 2026}
	if _, err := v.Validate(context.Background(), LimitCheck{WorkerID: " ", Period: march}); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := v.Validate(context.Background(), LimitCheck{WorkerID: "w1", Period: march, ProposedHonor: -1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := v.Validate(context.Background(), LimitCheck{WorkerID: "w1"}); !errors.Is(err, domain.ErrInsufficientScheduleInfo) {
		t.Fatalf("expected ErrInsufficientScheduleInfo, got %v", err)
	}
	if _, err := v.Validate(context.Background(), LimitCheck{WorkerID: "w1", Period: domain.Period{Month: 14, Year: 2026}}); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := v.ValidateForActivity(context.Background(), domain.Activity{ID: "x"}, "w1"); !errors.Is(err, domain.ErrInsufficientScheduleInfo) {
		t.Fatalf("expected ErrInsufficientScheduleInfo, got %v", err)
	}
}

func TestValidateForActivityExcludesStoredCopy(t *testing.T) {
	repo := newFakeRepo()
	march := domain.Period{Month: time.March, Year: 2026}
	stored := seedActivity(t, repo, "a1", &march, domain.Schedule{}, "w1", 2000)
	v := NewHonorLimitValidator(repo, repo, 3000000)

	got, err := v.ValidateForActivity(context.Background(), stored, "w1")
	if err != nil {
		t.Fatalf("ValidateForActivity() error = %v", err)
	}
	if got.ExistingTotal != 0 || got.ProposedHonor != 2000000 || got.ProjectedTotal != 2000000 {
		t.Fatalf("expected stored copy excluded, got %+v", got)
	}
}
