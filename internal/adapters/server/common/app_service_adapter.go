package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service activity, ledger, and honor APIs.
type AppServiceAdapter struct {
	service *app.Service
	actor   app.Actor
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
// actor attributes requests that carry no caller identity and decides privileged writes.
func NewAppServiceAdapter(service *app.Service, actor app.Actor) *AppServiceAdapter {
	return &AppServiceAdapter{service: service, actor: actor}
}

// ListActivities lists every activity with its derived status.
func (a *AppServiceAdapter) ListActivities(ctx context.Context) ([]ActivitySummary, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	activities, err := a.service.ListActivities(ctx)
	if err != nil {
		return nil, mapAppError("list activities", err)
	}
	out := make([]ActivitySummary, 0, len(activities))
	for _, activity := range activities {
		status := a.service.StatusOf(activity)
		out = append(out, ActivitySummary{
			ID:              activity.ID,
			Name:            activity.Name,
			Status:          string(status),
			StatusLabel:     status.Label(),
			PaymentPeriod:   periodString(activity.PaymentPeriod),
			AssignmentCount: len(activity.Assignments),
		})
	}
	return out, nil
}

// GetActivity returns one activity overview.
func (a *AppServiceAdapter) GetActivity(ctx context.Context, activityID string) (ActivityDetail, error) {
	if err := a.ready(); err != nil {
		return ActivityDetail{}, err
	}
	activityID, err := requireID("activity_id", activityID)
	if err != nil {
		return ActivityDetail{}, err
	}
	overview, err := a.service.Overview(ctx, activityID)
	if err != nil {
		return ActivityDetail{}, mapAppError("get activity", err)
	}
	return mapOverview(overview), nil
}

// ActivityStatus derives status and warnings for one activity.
func (a *AppServiceAdapter) ActivityStatus(ctx context.Context, activityID string) (ActivityStatus, error) {
	if err := a.ready(); err != nil {
		return ActivityStatus{}, err
	}
	activityID, err := requireID("activity_id", activityID)
	if err != nil {
		return ActivityStatus{}, err
	}
	status, err := a.service.ActivityStatus(ctx, activityID)
	if err != nil {
		return ActivityStatus{}, mapAppError("activity status", err)
	}
	warnings, err := a.service.ActivityWarnings(ctx, activityID)
	if err != nil {
		return ActivityStatus{}, mapAppError("activity warnings", err)
	}
	return ActivityStatus{
		ActivityID:  activityID,
		Status:      string(status),
		StatusLabel: status.Label(),
		Warnings:    nonNilWarnings(warnings),
	}, nil
}

// SetStageValue applies one ledger edit attributed to the request actor.
func (a *AppServiceAdapter) SetStageValue(ctx context.Context, in SetStageValueRequest) (Assignment, error) {
	if err := a.ready(); err != nil {
		return Assignment{}, err
	}
	activityID, err := requireID("activity_id", in.ActivityID)
	if err != nil {
		return Assignment{}, err
	}
	assignmentID, err := requireID("assignment_id", in.AssignmentID)
	if err != nil {
		return Assignment{}, err
	}
	stage := domain.Stage(strings.ToLower(strings.TrimSpace(in.Stage)))
	if stage == "" {
		return Assignment{}, fmt.Errorf("stage is required: %w", ErrInvalidRequest)
	}

	updated, err := a.service.SetStageValue(a.withActor(ctx, in.ActorID), app.SetStageValueInput{
		ActivityID:   activityID,
		AssignmentID: assignmentID,
		Stage:        stage,
		Value:        in.Value,
	})
	if err != nil {
		return Assignment{}, mapAppError("set stage value", err)
	}
	return mapAssignment(updated), nil
}

// ListProgressEvents returns recent ledger edits, newest first.
func (a *AppServiceAdapter) ListProgressEvents(ctx context.Context, in ListEventsRequest) ([]ProgressEvent, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	activityID, err := requireID("activity_id", in.ActivityID)
	if err != nil {
		return nil, err
	}
	if in.Limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0: %w", ErrInvalidRequest)
	}
	if _, err := a.service.GetActivity(ctx, activityID); err != nil {
		return nil, mapAppError("list progress events", err)
	}
	events, err := a.service.ListProgressEvents(ctx, activityID, in.Limit)
	if err != nil {
		return nil, mapAppError("list progress events", err)
	}
	out := make([]ProgressEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ProgressEvent{
			ID:           ev.ID,
			AssignmentID: ev.AssignmentID,
			Stage:        ev.Stage,
			OldValue:     ev.OldValue,
			NewValue:     ev.NewValue,
			ActorID:      ev.ActorID,
			OccurredAt:   ev.OccurredAt,
		})
	}
	return out, nil
}

// ListDocuments returns document metadata for one activity.
func (a *AppServiceAdapter) ListDocuments(ctx context.Context, activityID string) ([]Document, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	activityID, err := requireID("activity_id", activityID)
	if err != nil {
		return nil, err
	}
	if _, err := a.service.GetActivity(ctx, activityID); err != nil {
		return nil, mapAppError("list documents", err)
	}
	docs, err := a.service.ListDocuments(ctx, activityID)
	if err != nil {
		return nil, mapAppError("list documents", err)
	}
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, mapDocument(doc))
	}
	return out, nil
}

// UpsertDocument records or replaces one document's metadata.
func (a *AppServiceAdapter) UpsertDocument(ctx context.Context, in UpsertDocumentRequest) (Document, error) {
	if err := a.ready(); err != nil {
		return Document{}, err
	}
	phase, err := domain.ParsePhase(in.Phase)
	if err != nil {
		return Document{}, fmt.Errorf("phase %q: %w", in.Phase, errors.Join(ErrInvalidRequest, err))
	}
	var approval domain.ApprovalStatus
	if strings.TrimSpace(in.Approval) != "" {
		approval, err = domain.ParseApprovalStatus(in.Approval)
		if err != nil {
			return Document{}, fmt.Errorf("approval %q: %w", in.Approval, errors.Join(ErrInvalidRequest, err))
		}
	}
	doc, err := a.service.UpsertDocument(ctx, app.UpsertDocumentInput{
		ID:         in.ID,
		ActivityID: strings.TrimSpace(in.ActivityID),
		Phase:      phase,
		Name:       in.Name,
		Mandatory:  in.Mandatory,
		Approval:   approval,
	})
	if err != nil {
		return Document{}, mapAppError("upsert document", err)
	}
	return mapDocument(doc), nil
}

// ComputeHonor prices a unit count.
func (a *AppServiceAdapter) ComputeHonor(ctx context.Context, in ComputeHonorRequest) (ComputeHonorResult, error) {
	if err := a.ready(); err != nil {
		return ComputeHonorResult{}, err
	}
	price := in.UnitPrice
	if activityID := strings.TrimSpace(in.ActivityID); activityID != "" {
		taskType, err := domain.ParseTaskType(in.TaskType)
		if err != nil {
			return ComputeHonorResult{}, fmt.Errorf("task_type %q: %w", in.TaskType, errors.Join(ErrInvalidRequest, err))
		}
		activity, err := a.service.GetActivity(ctx, activityID)
		if err != nil {
			return ComputeHonorResult{}, mapAppError("compute honor", err)
		}
		price = activity.UnitPrice(taskType)
	}
	honor, err := domain.ComputeHonor(in.UnitCount, price)
	if err != nil {
		return ComputeHonorResult{}, mapAppError("compute honor", err)
	}
	return ComputeHonorResult{UnitCount: in.UnitCount, UnitPrice: price, Honor: honor}, nil
}

// GetHonorLimit returns the effective monthly ceiling.
func (a *AppServiceAdapter) GetHonorLimit(ctx context.Context) (HonorLimit, error) {
	if err := a.ready(); err != nil {
		return HonorLimit{}, err
	}
	limit, err := a.service.HonorLimit(ctx)
	if err != nil {
		return HonorLimit{}, mapAppError("get honor limit", err)
	}
	return HonorLimit{Limit: limit}, nil
}

// SetHonorLimit stores the monthly ceiling. The adapter actor must be an admin.
func (a *AppServiceAdapter) SetHonorLimit(ctx context.Context, in SetHonorLimitRequest) (HonorLimit, error) {
	if err := a.ready(); err != nil {
		return HonorLimit{}, err
	}
	if in.Limit < 0 {
		return HonorLimit{}, fmt.Errorf("limit must be >= 0: %w", ErrInvalidRequest)
	}
	if err := a.service.SetHonorLimit(a.withActor(ctx, in.ActorID), in.Limit); err != nil {
		return HonorLimit{}, mapAppError("set honor limit", err)
	}
	return HonorLimit{Limit: in.Limit}, nil
}

// ValidateHonorLimit projects a worker's monthly total against the ceiling.
func (a *AppServiceAdapter) ValidateHonorLimit(ctx context.Context, in LimitCheckRequest) (LimitResult, error) {
	if err := a.ready(); err != nil {
		return LimitResult{}, err
	}
	workerID, err := requireID("worker_id", in.WorkerID)
	if err != nil {
		return LimitResult{}, err
	}

	var result app.LimitResult
	activityID := strings.TrimSpace(in.ActivityID)
	if activityID != "" && strings.TrimSpace(in.Period) == "" {
		result, err = a.service.ValidateActivityHonorLimit(ctx, activityID, workerID)
	} else {
		period, perr := domain.ParsePeriod(in.Period)
		if perr != nil {
			return LimitResult{}, fmt.Errorf("period %q: %w", in.Period, errors.Join(ErrInvalidRequest, perr))
		}
		exclude := strings.TrimSpace(in.ExcludeActivityID)
		if exclude == "" {
			exclude = activityID
		}
		result, err = a.service.ValidateHonorLimit(ctx, app.LimitCheck{
			WorkerID:          workerID,
			Period:            period,
			ProposedHonor:     in.ProposedHonor,
			ExcludeActivityID: exclude,
		})
	}
	if err != nil {
		return LimitResult{}, mapAppError("validate honor limit", err)
	}
	return LimitResult{
		WorkerID:       result.WorkerID,
		Period:         result.Period.String(),
		Limit:          result.Limit,
		ExistingTotal:  result.ExistingTotal,
		ProposedHonor:  result.ProposedHonor,
		ProjectedTotal: result.ProjectedTotal,
		Headroom:       result.Headroom(),
		IsOverLimit:    result.IsOverLimit,
	}, nil
}

// MonthlyRecap totals worker honor for one "YYYY-MM" payment month.
func (a *AppServiceAdapter) MonthlyRecap(ctx context.Context, rawPeriod string) (Recap, error) {
	if err := a.ready(); err != nil {
		return Recap{}, err
	}
	period, err := domain.ParsePeriod(rawPeriod)
	if err != nil {
		return Recap{}, fmt.Errorf("period %q: %w", rawPeriod, errors.Join(ErrInvalidRequest, err))
	}
	recap, err := a.service.MonthlyRecap(ctx, period)
	if err != nil {
		return Recap{}, mapAppError("monthly recap", err)
	}
	out := Recap{
		Period:  recap.Period.String(),
		Limit:   recap.Limit,
		Total:   recap.Total(),
		Rows:    make([]RecapRow, 0, len(recap.Rows)),
		Skipped: recap.Skipped,
	}
	for _, row := range recap.Rows {
		out.Rows = append(out.Rows, RecapRow(row))
	}
	return out, nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	return nil
}

// withActor attaches the caller identity, keeping an actor already on ctx.
// actorID only changes attribution; the role always comes from the adapter actor.
func (a *AppServiceAdapter) withActor(ctx context.Context, actorID string) context.Context {
	actor, ok := app.ActorFromContext(ctx)
	if !ok {
		actor = a.actor
	}
	if id := strings.TrimSpace(actorID); id != "" {
		actor.ID = id
	}
	if strings.TrimSpace(actor.ID) == "" {
		actor.ID = domain.DefaultActorID
	}
	return app.WithActor(ctx, actor)
}

func requireID(field, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%s is required: %w", field, ErrInvalidRequest)
	}
	return id, nil
}

func periodString(p *domain.Period) string {
	if p == nil || p.IsZero() {
		return ""
	}
	return p.String()
}

func nonNilWarnings(in []domain.Warning) []domain.Warning {
	if in == nil {
		return []domain.Warning{}
	}
	return in
}

func stageValues(pipeline domain.Pipeline, values [domain.StageCount]int64) []StageValue {
	out := make([]StageValue, 0, domain.StageCount)
	for i, stage := range pipeline {
		out = append(out, StageValue{Stage: stage, Value: values[i], Derived: i == 0})
	}
	return out
}

func mapAssignment(as domain.WorkerAssignment) Assignment {
	details := as.Details
	if details == nil {
		details = []domain.WorkloadDetail{}
	}
	return Assignment{
		ID:             as.ID,
		ActivityID:     as.ActivityID,
		WorkerID:       as.WorkerID,
		WorkerName:     as.WorkerName,
		SupervisorName: as.SupervisorName,
		Phase:          as.Phase,
		Total:          as.Counters.Total,
		Honor:          as.Honor(),
		Stages:         stageValues(as.Counters.Pipeline(), as.Counters.Values),
		Details:        details,
	}
}

func mapOverview(o app.ActivityOverview) ActivityDetail {
	activity := o.Activity
	out := ActivityDetail{
		ID:                 activity.ID,
		Name:               activity.Name,
		Description:        activity.Description,
		Status:             string(o.Status),
		StatusLabel:        o.Status.Label(),
		Schedule:           activity.Schedule,
		PaymentPeriod:      periodString(activity.PaymentPeriod),
		HonorariumSettings: activity.HonorariumSettings,
		Assignments:        make([]Assignment, 0, len(activity.Assignments)),
		Progress:           make([]PhaseProgress, 0, len(o.Progress)),
		Warnings:           nonNilWarnings(o.Warnings),
		CreatedAt:          activity.CreatedAt,
		UpdatedAt:          activity.UpdatedAt,
		LastProgressAt:     activity.LastProgressAt,
		LastProgressBy:     activity.LastProgressBy,
	}
	if out.HonorariumSettings == nil {
		out.HonorariumSettings = []domain.HonorariumSetting{}
	}
	for _, as := range activity.Assignments {
		out.Assignments = append(out.Assignments, mapAssignment(as))
	}
	for _, totals := range o.Progress {
		pipeline, err := domain.PipelineForPhase(totals.Phase)
		if err != nil {
			continue
		}
		out.Progress = append(out.Progress, PhaseProgress{
			Phase:           totals.Phase,
			Label:           totals.Phase.Label(),
			Total:           totals.Total,
			Stages:          stageValues(pipeline, totals.Values),
			CompletionRatio: totals.CompletionRatio(),
		})
	}
	return out
}

func mapDocument(doc domain.DocumentRecord) Document {
	return Document{
		ID:         doc.ID,
		ActivityID: doc.ActivityID,
		Phase:      doc.Phase,
		Name:       doc.Name,
		Mandatory:  doc.Mandatory,
		Approval:   doc.Approval,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// mapAppError maps app/domain errors into stable transport-facing error categories.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrPrivilegeRequired):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrForbidden, err))
	case errors.Is(err, app.ErrHonorLimitExceeded):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrLimitExceeded, err))
	case errors.Is(err, domain.ErrDerivedStageImmutable),
		errors.Is(err, domain.ErrInsufficientUpstream):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrLedgerRejected, err))
	case errors.Is(err, domain.ErrDuplicateAssignment):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, domain.ErrInsufficientScheduleInfo):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrScheduleIncomplete, err))
	case errors.Is(err, domain.ErrConservationViolation):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInconsistentState, err))
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidValue),
		errors.Is(err, domain.ErrUnknownStage),
		errors.Is(err, domain.ErrUnknownTaskType),
		errors.Is(err, domain.ErrTaskTypeMismatch),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidPhase),
		errors.Is(err, domain.ErrInvalidTaskType),
		errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrInvalidPeriod):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
