package domain

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newTestActivity(t *testing.T) Activity {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a, err := NewActivity(ActivityInput{
		ID:   "a1",
		Name: "  Household Survey  ",
		Schedule: Schedule{
			Preparation:             DateRange{Start: day(2026, 3, 1), End: day(2026, 3, 9)},
			DataCollection:          DateRange{Start: day(2026, 3, 10), End: day(2026, 3, 31)},
			ProcessingAnalysis:      DateRange{Start: day(2026, 4, 1), End: day(2026, 4, 20)},
			DisseminationEvaluation: DateRange{Start: day(2026, 4, 21), End: day(2026, 4, 30)},
		},
		HonorariumSettings: []HonorariumSetting{
			{TaskType: TaskTypeProcessing, UnitPrice: 2000},
			{TaskType: TaskTypeListing, UnitPrice: 15000},
			{TaskType: TaskTypeEnumeration, UnitPrice: 15000},
		},
	}, now)
	if err != nil {
		t.Fatalf("NewActivity() error = %v", err)
	}
	return a
}

func TestNewActivity(t *testing.T) {
	a := newTestActivity(t)
	if a.Name != "Household Survey" {
		t.Fatalf("unexpected name %q", a.Name)
	}
	if a.HonorariumSettings[0].TaskType != TaskTypeListing || a.HonorariumSettings[2].TaskType != TaskTypeProcessing {
		t.Fatalf("expected settings in display order, got %+v", a.HonorariumSettings)
	}
	if a.UnitPrice(TaskTypeProcessing) != 2000 {
		t.Fatalf("unexpected processing price %d", a.UnitPrice(TaskTypeProcessing))
	}
}

func TestNewActivityValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewActivity(ActivityInput{Name: "x"}, now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewActivity(ActivityInput{ID: "a", Name: " "}, now); err != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	_, err := NewActivity(ActivityInput{
		ID:       "a",
		Name:     "x",
		Schedule: Schedule{DataCollection: DateRange{Start: day(2026, 5, 2), End: day(2026, 5, 1)}},
	}, now)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	_, err = NewActivity(ActivityInput{
		ID:   "a",
		Name: "x",
		Schedule: Schedule{
			DataCollection:     DateRange{Start: day(2026, 4, 10), End: day(2026, 4, 30)},
			ProcessingAnalysis: DateRange{Start: day(2026, 3, 1), End: day(2026, 5, 20)},
		},
	}, now)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange for out-of-order phases, got %v", err)
	}
	overlapping, err := NewActivity(ActivityInput{
		ID:   "a",
		Name: "x",
		Schedule: Schedule{
			Preparation:    DateRange{Start: day(2026, 3, 1), End: day(2026, 3, 12)},
			DataCollection: DateRange{Start: day(2026, 3, 10)},
		},
	}, now)
	if err != nil {
		t.Fatalf("expected ordered overlapping phases accepted, got %v", err)
	}
	if err := overlapping.UpdateDetails("x", "", Schedule{
		DataCollection:          DateRange{Start: day(2026, 6, 1)},
		DisseminationEvaluation: DateRange{Start: day(2026, 5, 1)},
	}, nil, now); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected UpdateDetails() ErrInvalidDateRange, got %v", err)
	}
	_, err = NewActivity(ActivityInput{ID: "a", Name: "x", PaymentPeriod: &Period{Month: 13, Year: 2026}}, now)
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestAddAssignmentEnforcesTaskTypes(t *testing.T) {
	a := newTestActivity(t)
	now := time.Now()
	as, err := a.AddAssignment(WorkerAssignmentInput{
		ID:       "as1",
		WorkerID: "w1",
		Phase:    PhaseDataCollection,
		Units:    map[TaskType]int64{TaskTypeListing: 40},
	}, now)
	if err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	if len(as.Details) != 2 {
		t.Fatalf("expected listing and enumeration details, got %+v", as.Details)
	}
	if as.Details[0].HonorAmount != 600000 || as.Details[1].UnitCount != 0 {
		t.Fatalf("unexpected details %+v", as.Details)
	}
	if as.Counters.Values != [StageCount]int64{40, 0, 0, 0} {
		t.Fatalf("unexpected seeded counters %v", as.Counters.Values)
	}
	if as.WorkerName != "w1" {
		t.Fatalf("expected worker name fallback, got %q", as.WorkerName)
	}

	_, err = a.AddAssignment(WorkerAssignmentInput{
		ID: "as2", WorkerID: "w2", Phase: PhaseProcessingAnalysis,
		Units: map[TaskType]int64{TaskTypeListing: 1},
	}, now)
	if !errors.Is(err, ErrTaskTypeMismatch) {
		t.Fatalf("expected ErrTaskTypeMismatch, got %v", err)
	}
	_, err = a.AddAssignment(WorkerAssignmentInput{ID: "as3", WorkerID: "w3", Phase: PhasePreparation}, now)
	if !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	_, err = a.AddAssignment(WorkerAssignmentInput{ID: "as4", WorkerID: "w1", Phase: PhaseDataCollection}, now)
	if !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
	if len(a.Assignments) != 1 {
		t.Fatalf("expected one stored assignment, got %d", len(a.Assignments))
	}
}

func TestSetHonorariumSettingRecomputesDetails(t *testing.T) {
	a := newTestActivity(t)
	now := time.Now()
	if _, err := a.AddAssignment(WorkerAssignmentInput{
		ID: "as1", WorkerID: "w1", Phase: PhaseDataCollection,
		Units: map[TaskType]int64{TaskTypeListing: 40, TaskTypeEnumeration: 20},
	}, now); err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	if got := a.WorkerHonor("w1"); got != 900000 {
		t.Fatalf("expected 900000, got %d", got)
	}
	if err := a.SetHonorariumSetting(HonorariumSetting{TaskType: TaskTypeEnumeration, UnitPrice: 10000}, now); err != nil {
		t.Fatalf("SetHonorariumSetting() error = %v", err)
	}
	if got := a.WorkerHonor("w1"); got != 800000 {
		t.Fatalf("expected 800000 after price change, got %d", got)
	}
}

func TestSetAssignmentWorkload(t *testing.T) {
	a := newTestActivity(t)
	now := time.Now()
	if _, err := a.AddAssignment(WorkerAssignmentInput{
		ID: "as1", WorkerID: "w1", Phase: PhaseDataCollection,
		Units: map[TaskType]int64{TaskTypeListing: 10},
	}, now); err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	if _, err := a.SetStageValue("as1", StageSubmitted, 8, "u1", now); err != nil {
		t.Fatalf("SetStageValue() error = %v", err)
	}
	if err := a.SetAssignmentWorkload("as1", TaskTypeEnumeration, 5, now); err != nil {
		t.Fatalf("SetAssignmentWorkload() error = %v", err)
	}
	as, _ := a.Assignment("as1")
	if as.Counters.Total != 15 || as.Counters.Values != [StageCount]int64{7, 8, 0, 0} {
		t.Fatalf("unexpected counters %+v", as.Counters)
	}
	if as.Honor() != 225000 {
		t.Fatalf("expected honor 225000, got %d", as.Honor())
	}

	err := a.SetAssignmentWorkload("as1", TaskTypeListing, 1, now)
	if !errors.Is(err, ErrInsufficientUpstream) {
		t.Fatalf("expected ErrInsufficientUpstream, got %v", err)
	}
	after, _ := a.Assignment("as1")
	if after.Details[0].UnitCount != 10 || after.Counters.Total != 15 {
		t.Fatalf("expected assignment unchanged, got %+v", after)
	}
	if err := a.SetAssignmentWorkload("as1", TaskTypeProcessing, 1, now); !errors.Is(err, ErrUnknownTaskType) {
		t.Fatalf("expected ErrUnknownTaskType, got %v", err)
	}
}

func TestActivitySetStageValueStampsProgress(t *testing.T) {
	a := newTestActivity(t)
	now := time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)
	if _, err := a.AddAssignment(WorkerAssignmentInput{
		ID: "as1", WorkerID: "w1", Phase: PhaseDataCollection,
		Units: map[TaskType]int64{TaskTypeListing: 100},
	}, now); err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	ev, err := a.SetStageValue("as1", StageSubmitted, 40, " ", now)
	if err != nil {
		t.Fatalf("SetStageValue() error = %v", err)
	}
	if ev.OldValue != 0 || ev.NewValue != 40 || ev.ActorID != DefaultActorID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if a.LastProgressAt == nil || !a.LastProgressAt.Equal(now) {
		t.Fatalf("expected last progress stamped, got %v", a.LastProgressAt)
	}

	later := now.Add(time.Hour)
	if _, err := a.SetStageValue("as1", StageReviewed, 50, "u1", later); !errors.Is(err, ErrInsufficientUpstream) {
		t.Fatalf("expected ErrInsufficientUpstream, got %v", err)
	}
	if !a.LastProgressAt.Equal(now) {
		t.Fatal("expected rejected edit to leave last progress untouched")
	}
	if _, err := a.SetStageValue("missing", StageSubmitted, 1, "u1", later); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	progress := a.PhaseProgress(PhaseDataCollection)
	if progress.Values != [StageCount]int64{60, 40, 0, 0} {
		t.Fatalf("unexpected phase progress %+v", progress)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := newTestActivity(t)
	if _, err := a.AddAssignment(WorkerAssignmentInput{
		ID: "as1", WorkerID: "w1", Phase: PhaseProcessingAnalysis,
		Units: map[TaskType]int64{TaskTypeProcessing: 3},
	}, time.Now()); err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	c := a.Clone()
	c.Assignments[0].Details[0].UnitCount = 99
	c.HonorariumSettings[0].UnitPrice = 1
	if a.Assignments[0].Details[0].UnitCount != 3 || a.HonorariumSettings[0].UnitPrice != 15000 {
		t.Fatal("expected clone to not share slices")
	}
}

func TestResolvePaymentPeriod(t *testing.T) {
	a := newTestActivity(t)
	got, err := ResolvePaymentPeriod(a)
	if err != nil {
		t.Fatalf("ResolvePaymentPeriod() error = %v", err)
	}
	if got != (Period{Month: time.March, Year: 2026}) {
		t.Fatalf("expected data collection month, got %v", got)
	}

	a.PaymentPeriod = &Period{Month: time.May, Year: 2026}
	if got, _ := ResolvePaymentPeriod(a); got.String() != "2026-05" {
		t.Fatalf("expected explicit month, got %v", got)
	}

	b := Activity{Schedule: Schedule{ProcessingAnalysis: DateRange{Start: day(2026, 7, 3)}}}
	if got, _ := ResolvePaymentPeriod(b); got.String() != "2026-07" {
		t.Fatalf("expected earliest start month, got %v", got)
	}
	if _, err := ResolvePaymentPeriod(Activity{}); !errors.Is(err, ErrInsufficientScheduleInfo) {
		t.Fatalf("expected ErrInsufficientScheduleInfo, got %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2026-02")
	if err != nil {
		t.Fatalf("ParsePeriod() error = %v", err)
	}
	if p.Month != time.February || p.Year != 2026 {
		t.Fatalf("unexpected period %+v", p)
	}
	for _, raw := range []string{"2026", "2026-13", "feb-2026"} {
		if _, err := ParsePeriod(raw); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("ParsePeriod(%q) expected ErrInvalidPeriod, got %v", raw, err)
		}
	}
}
