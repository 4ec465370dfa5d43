package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hylla/fieldwork/internal/adapters/storage/sqlite"
	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
)

// newAdapterFixture builds one adapter over sqlite with a seeded activity and assignment.
func newAdapterFixture(t *testing.T, actor app.Actor) (*AppServiceAdapter, domain.Activity, string) {
	t.Helper()

	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	nextID := 0
	idGen := func() string {
		nextID++
		return fmt.Sprintf("id-%03d", nextID)
	}
	clock := func() time.Time {
		return time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	}
	service := app.NewService(repo, idGen, clock, app.ServiceConfig{DefaultHonorLimit: 3000000})
	adapter := NewAppServiceAdapter(service, actor)

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	activity, err := service.CreateActivity(context.Background(), app.CreateActivityInput{
		Name:     "Household survey",
		Schedule: domain.Schedule{DataCollection: domain.DateRange{Start: &start}},
		HonorariumSettings: []domain.HonorariumSetting{
			{TaskType: domain.TaskTypeListing, UnitPrice: 5000},
			{TaskType: domain.TaskTypeEnumeration, UnitPrice: 15000},
		},
	})
	if err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}
	change, err := service.AddAssignment(context.Background(), app.AddAssignmentInput{
		ActivityID: activity.ID,
		WorkerID:   "w1",
		WorkerName: "Sari",
		Phase:      domain.PhaseDataCollection,
		Units:      map[domain.TaskType]int64{domain.TaskTypeEnumeration: 100},
	})
	if err != nil {
		t.Fatalf("AddAssignment() error = %v", err)
	}
	return adapter, activity, change.Assignment.ID
}

// TestAdapterSetStageValueAttributesActor verifies ledger edits persist with caller attribution.
func TestAdapterSetStageValueAttributesActor(t *testing.T) {
	adapter, activity, assignmentID := newAdapterFixture(t, app.Actor{ID: "server", Role: app.RoleStaff})
	ctx := context.Background()

	got, err := adapter.SetStageValue(ctx, SetStageValueRequest{
		ActivityID:   activity.ID,
		AssignmentID: assignmentID,
		Stage:        " Submitted ",
		Value:        40,
		ActorID:      "enumerator-7",
	})
	if err != nil {
		t.Fatalf("SetStageValue() error = %v", err)
	}
	if got.Stages[0].Value != 60 || !got.Stages[0].Derived || got.Stages[1].Value != 40 {
		t.Fatalf("unexpected stages %#v", got.Stages)
	}
	if got.Honor != 1500000 {
		t.Fatalf("expected honor 1500000, got %d", got.Honor)
	}

	events, err := adapter.ListProgressEvents(ctx, ListEventsRequest{ActivityID: activity.ID})
	if err != nil {
		t.Fatalf("ListProgressEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].ActorID != "enumerator-7" || events[0].NewValue != 40 {
		t.Fatalf("unexpected events %#v", events)
	}

	detail, err := adapter.GetActivity(ctx, activity.ID)
	if err != nil {
		t.Fatalf("GetActivity() error = %v", err)
	}
	if detail.LastProgressBy != "enumerator-7" || detail.Status != string(domain.StatusDataCollection) {
		t.Fatalf("unexpected detail %#v", detail)
	}
	if len(detail.Progress) != 2 || detail.Progress[0].Stages[1].Value != 40 {
		t.Fatalf("unexpected progress %#v", detail.Progress)
	}
}

// TestAdapterMapsLedgerErrors verifies domain rejections reach transports as stable categories.
func TestAdapterMapsLedgerErrors(t *testing.T) {
	adapter, activity, assignmentID := newAdapterFixture(t, app.Actor{ID: "server"})
	ctx := context.Background()

	cases := []struct {
		name string
		req  SetStageValueRequest
		want error
	}{
		{name: "derived", req: SetStageValueRequest{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: "open", Value: 10}, want: ErrLedgerRejected},
		{name: "upstream", req: SetStageValueRequest{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: "approved", Value: 10}, want: ErrLedgerRejected},
		{name: "negative", req: SetStageValueRequest{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: "submitted", Value: -1}, want: ErrInvalidRequest},
		{name: "unknown stage", req: SetStageValueRequest{ActivityID: activity.ID, AssignmentID: assignmentID, Stage: "clean", Value: 1}, want: ErrInvalidRequest},
		{name: "missing assignment", req: SetStageValueRequest{ActivityID: activity.ID, AssignmentID: "nope", Stage: "submitted", Value: 1}, want: ErrNotFound},
		{name: "missing activity", req: SetStageValueRequest{ActivityID: "nope", AssignmentID: assignmentID, Stage: "submitted", Value: 1}, want: ErrNotFound},
		{name: "blank stage", req: SetStageValueRequest{ActivityID: activity.ID, AssignmentID: assignmentID}, want: ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := adapter.SetStageValue(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("SetStageValue() error = %v, want %v", err, tc.want)
			}
		})
	}

	events, err := adapter.ListProgressEvents(ctx, ListEventsRequest{ActivityID: activity.ID})
	if err != nil {
		t.Fatalf("ListProgressEvents() error = %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected rejected edits to leave no history, got %#v", events)
	}
}

// TestAdapterHonorLimitRequiresAdmin verifies the adapter actor decides privileged writes.
func TestAdapterHonorLimitRequiresAdmin(t *testing.T) {
	staff, _, _ := newAdapterFixture(t, app.Actor{ID: "server", Role: app.RoleStaff})
	if _, err := staff.SetHonorLimit(context.Background(), SetHonorLimitRequest{Limit: 1000}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("SetHonorLimit(staff) error = %v, want ErrForbidden", err)
	}

	admin, _, _ := newAdapterFixture(t, app.Actor{ID: "ops", Role: app.RoleAdmin})
	ctx := context.Background()
	if _, err := admin.SetHonorLimit(ctx, SetHonorLimitRequest{Limit: -1}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("SetHonorLimit(negative) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := admin.SetHonorLimit(ctx, SetHonorLimitRequest{Limit: 2000000}); err != nil {
		t.Fatalf("SetHonorLimit(admin) error = %v", err)
	}
	limit, err := admin.GetHonorLimit(ctx)
	if err != nil {
		t.Fatalf("GetHonorLimit() error = %v", err)
	}
	if limit.Limit != 2000000 {
		t.Fatalf("expected stored limit, got %d", limit.Limit)
	}
}

// TestAdapterValidateHonorLimit covers explicit and activity-derived projections.
func TestAdapterValidateHonorLimit(t *testing.T) {
	adapter, activity, _ := newAdapterFixture(t, app.Actor{ID: "server"})
	ctx := context.Background()

	explicit, err := adapter.ValidateHonorLimit(ctx, LimitCheckRequest{WorkerID: "w1", Period: "2026-03", ProposedHonor: 1600000})
	if err != nil {
		t.Fatalf("ValidateHonorLimit(explicit) error = %v", err)
	}
	if explicit.ExistingTotal != 1500000 || explicit.ProjectedTotal != 3100000 || !explicit.IsOverLimit || explicit.Headroom != 0 {
		t.Fatalf("unexpected explicit result %#v", explicit)
	}

	derived, err := adapter.ValidateHonorLimit(ctx, LimitCheckRequest{WorkerID: "w1", ActivityID: activity.ID})
	if err != nil {
		t.Fatalf("ValidateHonorLimit(activity) error = %v", err)
	}
	if derived.Period != "2026-03" || derived.ProjectedTotal != 1500000 || derived.IsOverLimit {
		t.Fatalf("unexpected activity result %#v", derived)
	}

	if _, err := adapter.ValidateHonorLimit(ctx, LimitCheckRequest{WorkerID: "w1", Period: "March"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ValidateHonorLimit(bad period) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := adapter.ValidateHonorLimit(ctx, LimitCheckRequest{Period: "2026-03"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ValidateHonorLimit(no worker) error = %v, want ErrInvalidRequest", err)
	}
}

// TestAdapterComputeHonorAndRecap verifies pricing from settings and recap totals.
func TestAdapterComputeHonorAndRecap(t *testing.T) {
	adapter, activity, _ := newAdapterFixture(t, app.Actor{ID: "server"})
	ctx := context.Background()

	priced, err := adapter.ComputeHonor(ctx, ComputeHonorRequest{UnitCount: 12, ActivityID: activity.ID, TaskType: "listing"})
	if err != nil {
		t.Fatalf("ComputeHonor(activity) error = %v", err)
	}
	if priced.UnitPrice != 5000 || priced.Honor != 60000 {
		t.Fatalf("unexpected priced honor %#v", priced)
	}
	direct, err := adapter.ComputeHonor(ctx, ComputeHonorRequest{UnitCount: 3, UnitPrice: 7})
	if err != nil {
		t.Fatalf("ComputeHonor(direct) error = %v", err)
	}
	if direct.Honor != 21 {
		t.Fatalf("expected 21, got %d", direct.Honor)
	}
	if _, err := adapter.ComputeHonor(ctx, ComputeHonorRequest{UnitCount: -1, UnitPrice: 7}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ComputeHonor(negative) error = %v, want ErrInvalidRequest", err)
	}

	recap, err := adapter.MonthlyRecap(ctx, "2026-03")
	if err != nil {
		t.Fatalf("MonthlyRecap() error = %v", err)
	}
	if recap.Total != 1500000 || len(recap.Rows) != 1 || recap.Rows[0].WorkerName != "Sari" {
		t.Fatalf("unexpected recap %#v", recap)
	}
}

// TestAdapterDocumentsDriveStatusWarnings verifies document writes and status reads.
func TestAdapterDocumentsDriveStatusWarnings(t *testing.T) {
	adapter, activity, _ := newAdapterFixture(t, app.Actor{ID: "server"})
	ctx := context.Background()

	doc, err := adapter.UpsertDocument(ctx, UpsertDocumentRequest{
		ActivityID: activity.ID,
		Phase:      "data-collection",
		Name:       "Field report",
		Mandatory:  true,
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if doc.Approval != domain.ApprovalPending || doc.Phase != domain.PhaseDataCollection {
		t.Fatalf("unexpected document %#v", doc)
	}
	if _, err := adapter.UpsertDocument(ctx, UpsertDocumentRequest{ActivityID: activity.ID, Phase: "data_collection", Name: "x", Approval: "maybe"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("UpsertDocument(bad approval) error = %v, want ErrInvalidRequest", err)
	}

	docs, err := adapter.ListDocuments(ctx, activity.ID)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}

	status, err := adapter.ActivityStatus(ctx, activity.ID)
	if err != nil {
		t.Fatalf("ActivityStatus() error = %v", err)
	}
	if status.Status != string(domain.StatusDataCollection) || status.StatusLabel != "Data collection" {
		t.Fatalf("unexpected status %#v", status)
	}
	if status.Warnings == nil {
		t.Fatal("expected non-nil warnings slice")
	}
	if _, err := adapter.ActivityStatus(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ActivityStatus(missing) error = %v, want ErrNotFound", err)
	}

	list, err := adapter.ListActivities(ctx)
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(list) != 1 || list[0].AssignmentCount != 1 {
		t.Fatalf("unexpected list %#v", list)
	}
}

// TestNilAdapterRejectsCalls verifies an unconfigured adapter fails closed.
func TestNilAdapterRejectsCalls(t *testing.T) {
	var adapter *AppServiceAdapter
	if _, err := adapter.ListActivities(context.Background()); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("ListActivities() error = %v, want ErrInvalidRequest", err)
	}
}
