package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/hylla/fieldwork/internal/domain"
)

type fakeRepo struct {
	activities map[string]domain.Activity
	events     []domain.ProgressEvent
	documents  map[string]domain.DocumentRecord
	limit      *int64
	updateErr  error
	eventErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		activities: map[string]domain.Activity{},
		documents:  map[string]domain.DocumentRecord{},
	}
}

func (f *fakeRepo) CreateActivity(_ context.Context, a domain.Activity) error {
	f.activities[a.ID] = a.Clone()
	return nil
}

func (f *fakeRepo) UpdateActivity(_ context.Context, a domain.Activity) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.activities[a.ID]; !ok {
		return ErrNotFound
	}
	f.activities[a.ID] = a.Clone()
	return nil
}

func (f *fakeRepo) GetActivity(_ context.Context, id string) (domain.Activity, error) {
	a, ok := f.activities[id]
	if !ok {
		return domain.Activity{}, ErrNotFound
	}
	return a.Clone(), nil
}

func (f *fakeRepo) ListActivities(_ context.Context) ([]domain.Activity, error) {
	out := make([]domain.Activity, 0, len(f.activities))
	for _, a := range f.activities {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) FindActivitiesPayingWorkerInMonth(_ context.Context, workerID string, period domain.Period, excludeID string) ([]domain.Activity, error) {
	out := []domain.Activity{}
	for _, a := range f.activities {
		if a.ID == excludeID || !a.PaysWorker(workerID) {
			continue
		}
		if p, err := domain.ResolvePaymentPeriod(a); err != nil || p != period {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

func (f *fakeRepo) UpdateActivityWithEvent(ctx context.Context, a domain.Activity, ev domain.ProgressEvent) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	if err := f.UpdateActivity(ctx, a); err != nil {
		return err
	}
	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRepo) ListProgressEvents(_ context.Context, activityID string, limit int) ([]domain.ProgressEvent, error) {
	out := []domain.ProgressEvent{}
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].ActivityID == activityID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) GetHonorLimit(_ context.Context) (int64, bool, error) {
	if f.limit == nil {
		return 0, false, nil
	}
	return *f.limit, true, nil
}

func (f *fakeRepo) SetHonorLimit(_ context.Context, limit int64) error {
	f.limit = &limit
	return nil
}

func (f *fakeRepo) GetMandatoryDocuments(_ context.Context, activityID string, phase domain.Phase) ([]domain.DocumentRecord, error) {
	out := []domain.DocumentRecord{}
	for _, d := range f.documents {
		if d.ActivityID == activityID && d.Phase == phase && d.Mandatory {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDocuments(_ context.Context, activityID string) ([]domain.DocumentRecord, error) {
	out := []domain.DocumentRecord{}
	for _, d := range f.documents {
		if d.ActivityID == activityID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) UpsertDocument(_ context.Context, d domain.DocumentRecord) error {
	f.documents[d.ID] = d
	return nil
}

type recordingObserver struct {
	stageOK, stageFail int
	limitChecks        int
	warnings           int
}

func (o *recordingObserver) StageUpdate(_ domain.Phase, err error) {
	if err != nil {
		o.stageFail++
		return
	}
	o.stageOK++
}

func (o *recordingObserver) LimitCheck(LimitResult, error) { o.limitChecks++ }

func (o *recordingObserver) Warnings(w []domain.Warning) { o.warnings += len(w) }

func sequentialIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func surveySchedule() domain.Schedule {
	return domain.Schedule{
		Preparation:             domain.DateRange{Start: date(2026, 3, 1), End: date(2026, 3, 9)},
		DataCollection:          domain.DateRange{Start: date(2026, 3, 10), End: date(2026, 3, 31)},
		ProcessingAnalysis:      domain.DateRange{Start: date(2026, 4, 1), End: date(2026, 4, 20)},
		DisseminationEvaluation: domain.DateRange{Start: date(2026, 4, 21), End: date(2026, 4, 30)},
	}
}

func surveyPrices() []domain.HonorariumSetting {
	return []domain.HonorariumSetting{
		{TaskType: domain.TaskTypeListing, UnitPrice: 15000},
		{TaskType: domain.TaskTypeEnumeration, UnitPrice: 15000},
		{TaskType: domain.TaskTypeProcessing, UnitPrice: 2000},
	}
}

func newTestService(repo *fakeRepo, now time.Time, obs Observer) *Service {
	return NewService(repo, sequentialIDs(), func() time.Time { return now }, ServiceConfig{
		DefaultHonorLimit: 3000000,
		Observer:          obs,
	})
}

func TestServiceStageProgressFlow(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	obs := &recordingObserver{}
	svc := newTestService(repo, now, obs)
	ctx := WithActor(context.Background(), Actor{ID: "supervisor-1"})

	activity, err := svc.CreateActivity(ctx, CreateActivityInput{
		Name:               "Household Survey",
		Schedule:           surveySchedule(),
		HonorariumSettings: surveyPrices(),
	})
	if err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}
	change, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: activity.ID,
		WorkerID:   "w1",
		Phase:      domain.PhaseDataCollection,
		Units:      map[domain.TaskType]int64{domain.TaskTypeListing: 100},
	})
	if err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	if change.Limit == nil || change.Limit.ProjectedTotal != 1500000 || change.Limit.IsOverLimit || change.ScheduleIncomplete {
		t.Fatalf("unexpected limit projection %+v", change.Limit)
	}
	assignmentID := change.Assignment.ID

	updated, err := svc.SetStageValue(ctx, SetStageValueInput{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: domain.StageSubmitted, Value: 40})
	if err != nil {
		t.Fatalf("SetStageValue(submitted) error = %v", err)
	}
	if updated.Counters.Values != [domain.StageCount]int64{60, 40, 0, 0} {
		t.Fatalf("unexpected counters %v", updated.Counters.Values)
	}
	if _, err := svc.SetStageValue(ctx, SetStageValueInput{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: domain.StageReviewed, Value: 25}); err != nil {
		t.Fatalf("SetStageValue(reviewed) error = %v", err)
	}
	_, err = svc.SetStageValue(ctx, SetStageValueInput{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: domain.StageReviewed, Value: 50})
	if !errors.Is(err, domain.ErrInsufficientUpstream) {
		t.Fatalf("expected ErrInsufficientUpstream, got %v", err)
	}
	_, err = svc.SetStageValue(ctx, SetStageValueInput{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: domain.StageOpen, Value: 1})
	if !errors.Is(err, domain.ErrDerivedStageImmutable) {
		t.Fatalf("expected ErrDerivedStageImmutable, got %v", err)
	}

	stored, _ := repo.GetActivity(ctx, activity.ID)
	got, _ := stored.Assignment(assignmentID)
	if got.Counters.Values != [domain.StageCount]int64{60, 15, 25, 0} {
		t.Fatalf("unexpected stored counters %v", got.Counters.Values)
	}
	if stored.LastProgressBy != "supervisor-1" || stored.LastProgressAt == nil {
		t.Fatalf("expected last progress stamp, got %q %v", stored.LastProgressBy, stored.LastProgressAt)
	}

	events, err := svc.ListProgressEvents(ctx, activity.ID, 0)
	if err != nil {
		t.Fatalf("ListProgressEvents() error = %v", err)
	}
	if len(events) != 2 || events[0].Stage != domain.StageReviewed || events[0].NewValue != 25 {
		t.Fatalf("unexpected events %+v", events)
	}
	if obs.stageOK != 2 || obs.stageFail != 2 {
		t.Fatalf("unexpected observer counts %+v", obs)
	}
}

func TestServiceSetStageValueNoopSkipsWrite(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now, nil)
	ctx := context.Background()
	activity, _ := svc.CreateActivity(ctx, CreateActivityInput{Name: "A", Schedule: surveySchedule()})
	change, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: activity.ID, WorkerID: "w1", Phase: domain.PhaseProcessingAnalysis,
		Units: map[domain.TaskType]int64{domain.TaskTypeProcessing: 5},
	})
	if err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	repo.updateErr = errors.New("boom")
	if _, err := svc.SetStageValue(ctx, SetStageValueInput{ActivityID: activity.ID, AssignmentID: change.Assignment.ID, Stage: domain.StageEntered, Value: 0}); err != nil {
		t.Fatalf("SetStageValue(no-op) error = %v", err)
	}
	if len(repo.events) != 0 {
		t.Fatalf("expected no progress event for a no-op, got %d", len(repo.events))
	}
	if _, err := svc.SetStageValue(ctx, SetStageValueInput{ActivityID: activity.ID, AssignmentID: "missing", Stage: domain.StageEntered, Value: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceSetStageValueEventFailureKeepsCounters(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now, nil)
	ctx := context.Background()
	activity, err := svc.CreateActivity(ctx, CreateActivityInput{Name: "A", Schedule: surveySchedule(), HonorariumSettings: surveyPrices()})
	if err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}
	change, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: activity.ID, WorkerID: "w1", Phase: domain.PhaseDataCollection,
		Units: map[domain.TaskType]int64{domain.TaskTypeListing: 100},
	})
	if err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}

	repo.eventErr = errors.New("disk full")
	_, err = svc.SetStageValue(ctx, SetStageValueInput{ActivityID: activity.ID, AssignmentID: change.Assignment.ID, Stage: domain.StageSubmitted, Value: 40})
	if err == nil {
		t.Fatal("expected SetStageValue() error when the progress log write fails")
	}

	stored, _ := repo.GetActivity(ctx, activity.ID)
	got, _ := stored.Assignment(change.Assignment.ID)
	if got.Counters.Values != [domain.StageCount]int64{100, 0, 0, 0} {
		t.Fatalf("expected counters untouched, got %v", got.Counters.Values)
	}
	if stored.LastProgressAt != nil {
		t.Fatalf("expected no progress stamp, got %v", stored.LastProgressAt)
	}
	if len(repo.events) != 0 {
		t.Fatalf("expected no progress events, got %d", len(repo.events))
	}
}

func TestServiceEnforceLimitRejectsWithoutSaving(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now, nil)
	ctx := context.Background()

	first, _ := svc.CreateActivity(ctx, CreateActivityInput{Name: "First", Schedule: surveySchedule(), HonorariumSettings: surveyPrices()})
	if _, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: first.ID, WorkerID: "w1", Phase: domain.PhaseDataCollection,
		Units: map[domain.TaskType]int64{domain.TaskTypeListing: 150},
	}); err != nil {
		t.Fatalf("AddAssignment(first) error = %v", err)
	}

	second, _ := svc.CreateActivity(ctx, CreateActivityInput{Name: "Second", Schedule: surveySchedule(), HonorariumSettings: surveyPrices()})
	change, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: second.ID, WorkerID: "w1", Phase: domain.PhaseDataCollection,
		Units:        map[domain.TaskType]int64{domain.TaskTypeEnumeration: 60},
		EnforceLimit: true,
	})
	if !errors.Is(err, ErrHonorLimitExceeded) {
		t.Fatalf("expected ErrHonorLimitExceeded, got %v", err)
	}
	if change.Limit == nil || change.Limit.ProjectedTotal != 3150000 {
		t.Fatalf("expected projection with rejection, got %+v", change.Limit)
	}
	stored, _ := repo.GetActivity(ctx, second.ID)
	if len(stored.Assignments) != 0 {
		t.Fatalf("expected rejected assignment not to be saved, got %+v", stored.Assignments)
	}

	advisory, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: second.ID, WorkerID: "w1", Phase: domain.PhaseDataCollection,
		Units: map[domain.TaskType]int64{domain.TaskTypeEnumeration: 60},
	})
	if err != nil {
		t.Fatalf("AddAssignment(advisory) error = %v", err)
	}
	if advisory.Limit == nil || !advisory.Limit.IsOverLimit {
		t.Fatalf("expected advisory over-limit signal, got %+v", advisory.Limit)
	}
}

func TestServiceAssignmentWithoutScheduleHasNoProjection(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now(), nil)
	ctx := context.Background()
	activity, _ := svc.CreateActivity(ctx, CreateActivityInput{Name: "Unscheduled"})
	change, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: activity.ID, WorkerID: "w1", Phase: domain.PhaseDataCollection,
	})
	if err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	if change.Limit != nil || !change.ScheduleIncomplete {
		t.Fatalf("expected nil projection flagged incomplete, got %+v", change)
	}
	_, err = svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: activity.ID, WorkerID: "w2", Phase: domain.PhaseDataCollection, EnforceLimit: true,
	})
	if !errors.Is(err, domain.ErrInsufficientScheduleInfo) {
		t.Fatalf("expected ErrInsufficientScheduleInfo, got %v", err)
	}
}

func TestServiceHonorariumAndWorkload(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()
	activity, _ := svc.CreateActivity(ctx, CreateActivityInput{Name: "A", Schedule: surveySchedule(), HonorariumSettings: surveyPrices()})
	change, err := svc.AddAssignment(ctx, AddAssignmentInput{
		ActivityID: activity.ID, WorkerID: "w1", Phase: domain.PhaseDataCollection,
		Units: map[domain.TaskType]int64{domain.TaskTypeListing: 40, domain.TaskTypeEnumeration: 20},
	})
	if err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	if change.Assignment.Honor() != 900000 {
		t.Fatalf("expected 900000, got %d", change.Assignment.Honor())
	}

	updated, err := svc.UpdateHonorariumSetting(ctx, activity.ID, domain.HonorariumSetting{TaskType: domain.TaskTypeListing, UnitPrice: 10000})
	if err != nil {
		t.Fatalf("UpdateHonorariumSetting() error = %v", err)
	}
	if got := updated.WorkerHonor("w1"); got != 700000 {
		t.Fatalf("expected 700000 after price change, got %d", got)
	}

	wl, err := svc.SetAssignmentWorkload(ctx, SetAssignmentWorkloadInput{
		ActivityID: activity.ID, AssignmentID: change.Assignment.ID, TaskType: domain.TaskTypeEnumeration, UnitCount: 30,
	})
	if err != nil {
		t.Fatalf("SetAssignmentWorkload() error = %v", err)
	}
	if wl.Assignment.Counters.Total != 70 || wl.Assignment.Honor() != 850000 {
		t.Fatalf("unexpected assignment after workload edit %+v", wl.Assignment)
	}
	if wl.Limit == nil || wl.Limit.ProjectedTotal != 850000 {
		t.Fatalf("unexpected limit projection %+v", wl.Limit)
	}
}

func TestServiceSetHonorLimitRequiresAdmin(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now(), nil)

	got, err := svc.HonorLimit(context.Background())
	if err != nil {
		t.Fatalf("HonorLimit() error = %v", err)
	}
	if got != 3000000 {
		t.Fatalf("expected configured default, got %d", got)
	}
	if err := svc.SetHonorLimit(context.Background(), 1); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("expected ErrPrivilegeRequired without actor, got %v", err)
	}
	staff := WithActor(context.Background(), Actor{ID: "u1", Role: RoleStaff})
	if err := svc.SetHonorLimit(staff, 1); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("expected ErrPrivilegeRequired for staff, got %v", err)
	}
	admin := WithActor(context.Background(), Actor{ID: "root", Role: RoleAdmin})
	if err := svc.SetHonorLimit(admin, -1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := svc.SetHonorLimit(admin, 4500000); err != nil {
		t.Fatalf("SetHonorLimit() error = %v", err)
	}
	if got, _ := svc.HonorLimit(admin); got != 4500000 {
		t.Fatalf("expected stored limit, got %d", got)
	}
}

func TestServiceStatusWarningsAndOverview(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	obs := &recordingObserver{}
	svc := newTestService(repo, now, obs)
	ctx := context.Background()
	activity, _ := svc.CreateActivity(ctx, CreateActivityInput{Name: "A", Schedule: surveySchedule()})
	if _, err := svc.UpsertDocument(ctx, UpsertDocumentInput{
		ActivityID: activity.ID, Phase: domain.PhasePreparation, Name: "Field plan", Mandatory: true,
	}); err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	status, err := svc.ActivityStatus(ctx, activity.ID)
	if err != nil {
		t.Fatalf("ActivityStatus() error = %v", err)
	}
	if status != domain.StatusDataCollection {
		t.Fatalf("expected data collection, got %s", status)
	}
	warnings, err := svc.ActivityWarnings(ctx, activity.ID)
	if err != nil {
		t.Fatalf("ActivityWarnings() error = %v", err)
	}
	if len(warnings) != 1 || warnings[0].Message != "Preparation report approved late" {
		t.Fatalf("unexpected warnings %+v", warnings)
	}

	overview, err := svc.Overview(ctx, activity.ID)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if overview.Status != domain.StatusDataCollection || len(overview.Progress) != 2 {
		t.Fatalf("unexpected overview %+v", overview)
	}
	if obs.warnings != 2 {
		t.Fatalf("expected warnings observed twice, got %d", obs.warnings)
	}
	if _, err := svc.ActivityStatus(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.UpsertDocument(ctx, UpsertDocumentInput{ActivityID: "missing", Phase: domain.PhasePreparation, Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceListActivitiesSortedByName(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, time.Now(), nil)
	ctx := context.Background()
	for _, name := range []string{"zeta", "Alpha", "beta"} {
		if _, err := svc.CreateActivity(ctx, CreateActivityInput{Name: name}); err != nil {
			t.Fatalf("CreateActivity(%q) error = %v", name, err)
		}
	}
	list, err := svc.ListActivities(ctx)
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(list) != 3 || list[0].Name != "Alpha" || list[2].Name != "zeta" {
		t.Fatalf("unexpected order %+v", list)
	}
}
