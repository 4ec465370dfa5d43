package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/fieldwork/internal/domain"
)

// DefaultStaleAfter is how long an active phase may go without a progress update.
const DefaultStaleAfter = 48 * time.Hour

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultHonorLimit int64
	StaleAfter        time.Duration
	Observer          Observer
}

// Observer receives outcome notifications for metrics.
type Observer interface {
	StageUpdate(phase domain.Phase, err error)
	LimitCheck(result LimitResult, err error)
	Warnings([]domain.Warning)
}

type nopObserver struct{}

func (nopObserver) StageUpdate(domain.Phase, error) {}
func (nopObserver) LimitCheck(LimitResult, error)   {}
func (nopObserver) Warnings([]domain.Warning)       {}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service orchestrates the ledger, calculator, limit validator, and status engine
// over the persistence ports.
type Service struct {
	repo       Repository
	idGen      IDGenerator
	clock      Clock
	limits     *HonorLimitValidator
	staleAfter time.Duration
	observer   Observer
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Service{
		repo:       repo,
		idGen:      idGen,
		clock:      clock,
		limits:     NewHonorLimitValidator(repo, repo, cfg.DefaultHonorLimit),
		staleAfter: cfg.StaleAfter,
		observer:   cfg.Observer,
	}
}

// Validator returns the honor limit validator backed by the service repository.
func (s *Service) Validator() *HonorLimitValidator {
	return s.limits
}

// CreateActivityInput holds input values for create activity operations.
type CreateActivityInput struct {
	Name               string
	Description        string
	Schedule           domain.Schedule
	PaymentPeriod      *domain.Period
	HonorariumSettings []domain.HonorariumSetting
}

// CreateActivity creates an activity with no assignments.
func (s *Service) CreateActivity(ctx context.Context, in CreateActivityInput) (domain.Activity, error) {
	activity, err := domain.NewActivity(domain.ActivityInput{
		ID:                 s.idGen(),
		Name:               in.Name,
		Description:        in.Description,
		Schedule:           in.Schedule,
		PaymentPeriod:      in.PaymentPeriod,
		HonorariumSettings: in.HonorariumSettings,
	}, s.clock())
	if err != nil {
		return domain.Activity{}, err
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// UpdateActivityInput holds input values for update activity operations.
type UpdateActivityInput struct {
	ActivityID    string
	Name          string
	Description   string
	Schedule      domain.Schedule
	PaymentPeriod *domain.Period
}

// UpdateActivity replaces an activity's descriptive fields and schedule.
func (s *Service) UpdateActivity(ctx context.Context, in UpdateActivityInput) (domain.Activity, error) {
	activity, err := s.repo.GetActivity(ctx, in.ActivityID)
	if err != nil {
		return domain.Activity{}, err
	}
	if err := activity.UpdateDetails(in.Name, in.Description, in.Schedule, in.PaymentPeriod, s.clock()); err != nil {
		return domain.Activity{}, err
	}
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// GetActivity returns one activity.
func (s *Service) GetActivity(ctx context.Context, activityID string) (domain.Activity, error) {
	return s.repo.GetActivity(ctx, strings.TrimSpace(activityID))
}

// ListActivities returns every activity ordered by name.
func (s *Service) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	activities, err := s.repo.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(activities, func(a, b domain.Activity) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return activities, nil
}

// AddAssignmentInput holds input values for add assignment operations.
type AddAssignmentInput struct {
	ActivityID     string
	WorkerID       string
	WorkerName     string
	SupervisorName string
	Phase          domain.Phase
	Units          map[domain.TaskType]int64
	// EnforceLimit rejects the change with ErrHonorLimitExceeded instead of only reporting it.
	EnforceLimit bool
}

// AssignmentChange is the saved assignment plus the worker's limit projection.
// Limit is nil when the activity's payment month cannot be resolved yet.
type AssignmentChange struct {
	Assignment domain.WorkerAssignment
	Limit      *LimitResult
	// ScheduleIncomplete is set when no payment month resolves, so Limit is nil and
	// the ceiling was not checked.
	ScheduleIncomplete bool
}

// AddAssignment allocates a worker and reports the worker's monthly limit projection.
func (s *Service) AddAssignment(ctx context.Context, in AddAssignmentInput) (AssignmentChange, error) {
	activity, err := s.repo.GetActivity(ctx, in.ActivityID)
	if err != nil {
		return AssignmentChange{}, err
	}
	assignment, err := activity.AddAssignment(domain.WorkerAssignmentInput{
		ID:             s.idGen(),
		WorkerID:       in.WorkerID,
		WorkerName:     in.WorkerName,
		SupervisorName: in.SupervisorName,
		Phase:          in.Phase,
		Units:          in.Units,
	}, s.clock())
	if err != nil {
		return AssignmentChange{}, err
	}
	limit, incomplete, err := s.checkAssignmentLimit(ctx, activity, assignment.WorkerID, in.EnforceLimit)
	if err != nil {
		return AssignmentChange{Limit: limit}, err
	}
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return AssignmentChange{}, err
	}
	return AssignmentChange{Assignment: assignment, Limit: limit, ScheduleIncomplete: incomplete}, nil
}

// RemoveAssignment deletes one assignment with its counters.
func (s *Service) RemoveAssignment(ctx context.Context, activityID, assignmentID string) error {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if err := activity.RemoveAssignment(assignmentID, s.clock()); err != nil {
		return err
	}
	return s.repo.UpdateActivity(ctx, activity)
}

// SetAssignmentWorkloadInput holds input values for workload edits.
type SetAssignmentWorkloadInput struct {
	ActivityID   string
	AssignmentID string
	TaskType     domain.TaskType
	UnitCount    int64
	EnforceLimit bool
}

// SetAssignmentWorkload changes one task type's unit count, recomputing honor and the
// derived first stage.
func (s *Service) SetAssignmentWorkload(ctx context.Context, in SetAssignmentWorkloadInput) (AssignmentChange, error) {
	activity, err := s.repo.GetActivity(ctx, in.ActivityID)
	if err != nil {
		return AssignmentChange{}, err
	}
	if err := activity.SetAssignmentWorkload(in.AssignmentID, in.TaskType, in.UnitCount, s.clock()); err != nil {
		return AssignmentChange{}, err
	}
	assignment, _ := activity.Assignment(in.AssignmentID)
	limit, incomplete, err := s.checkAssignmentLimit(ctx, activity, assignment.WorkerID, in.EnforceLimit)
	if err != nil {
		return AssignmentChange{Limit: limit}, err
	}
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return AssignmentChange{}, err
	}
	return AssignmentChange{Assignment: assignment, Limit: limit, ScheduleIncomplete: incomplete}, nil
}

// UpdateHonorariumSetting changes a task type's unit price and recomputes every
// matching workload detail in the activity.
func (s *Service) UpdateHonorariumSetting(ctx context.Context, activityID string, setting domain.HonorariumSetting) (domain.Activity, error) {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return domain.Activity{}, err
	}
	if err := activity.SetHonorariumSetting(setting, s.clock()); err != nil {
		return domain.Activity{}, err
	}
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// SetStageValueInput holds input values for one ledger edit.
type SetStageValueInput struct {
	ActivityID   string
	AssignmentID string
	Stage        domain.Stage
	Value        int64
}

// SetStageValue applies one ledger edit, persists the counters, and appends the edit
// to the progress log. A rejected edit leaves stored state untouched.
func (s *Service) SetStageValue(ctx context.Context, in SetStageValueInput) (domain.WorkerAssignment, error) {
	activity, err := s.repo.GetActivity(ctx, in.ActivityID)
	if err != nil {
		return domain.WorkerAssignment{}, err
	}
	current, ok := activity.Assignment(in.AssignmentID)
	if !ok {
		return domain.WorkerAssignment{}, fmt.Errorf("assignment %q: %w", in.AssignmentID, ErrNotFound)
	}
	event, err := activity.SetStageValue(current.ID, in.Stage, in.Value, s.actorID(ctx), s.clock())
	s.observer.StageUpdate(current.Phase, err)
	if err != nil {
		return domain.WorkerAssignment{}, err
	}
	updated, _ := activity.Assignment(current.ID)
	if event.OldValue == event.NewValue {
		return updated, nil
	}
	if err := s.repo.UpdateActivityWithEvent(ctx, activity, event); err != nil {
		return domain.WorkerAssignment{}, fmt.Errorf("record progress event: %w", err)
	}
	return updated, nil
}

// ListProgressEvents returns recent ledger edits of an activity, newest first.
func (s *Service) ListProgressEvents(ctx context.Context, activityID string, limit int) ([]domain.ProgressEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListProgressEvents(ctx, strings.TrimSpace(activityID), limit)
}

// ValidateHonorLimit runs one limit projection.
func (s *Service) ValidateHonorLimit(ctx context.Context, in LimitCheck) (LimitResult, error) {
	result, err := s.limits.Validate(ctx, in)
	s.observer.LimitCheck(result, err)
	return result, err
}

// ValidateActivityHonorLimit projects a worker's month using the stored activity's
// payment month and its current honor for that worker.
func (s *Service) ValidateActivityHonorLimit(ctx context.Context, activityID, workerID string) (LimitResult, error) {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return LimitResult{}, err
	}
	result, err := s.limits.ValidateForActivity(ctx, activity, workerID)
	s.observer.LimitCheck(result, err)
	return result, err
}

// HonorLimit returns the effective monthly ceiling.
func (s *Service) HonorLimit(ctx context.Context) (int64, error) {
	return s.limits.Limit(ctx)
}

// SetHonorLimit stores the monthly ceiling. Only admin actors may call it.
func (s *Service) SetHonorLimit(ctx context.Context, limit int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.IsAdmin() {
		return ErrPrivilegeRequired
	}
	if limit < 0 {
		return domain.ErrInvalidInput
	}
	return s.repo.SetHonorLimit(ctx, limit)
}

// ActivityStatus derives the activity's lifecycle phase for the current clock.
func (s *Service) ActivityStatus(ctx context.Context, activityID string) (domain.Status, error) {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return "", err
	}
	return domain.DeriveStatus(activity, s.clock()), nil
}

// StatusOf derives the status of an already loaded activity.
func (s *Service) StatusOf(activity domain.Activity) domain.Status {
	return domain.DeriveStatus(activity, s.clock())
}

// ActivityWarnings derives advisory warnings from the schedule, documents, and
// last progress update.
func (s *Service) ActivityWarnings(ctx context.Context, activityID string) ([]domain.Warning, error) {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return s.warningsFor(ctx, activity)
}

// ActivityOverview bundles an activity with everything derived from it.
type ActivityOverview struct {
	Activity domain.Activity
	Status   domain.Status
	Warnings []domain.Warning
	Progress []domain.StageTotals
}

// Overview loads an activity and derives status, warnings, and per-phase progress.
func (s *Service) Overview(ctx context.Context, activityID string) (ActivityOverview, error) {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return ActivityOverview{}, err
	}
	warnings, err := s.warningsFor(ctx, activity)
	if err != nil {
		return ActivityOverview{}, err
	}
	return ActivityOverview{
		Activity: activity,
		Status:   domain.DeriveStatus(activity, s.clock()),
		Warnings: warnings,
		Progress: []domain.StageTotals{
			activity.PhaseProgress(domain.PhaseDataCollection),
			activity.PhaseProgress(domain.PhaseProcessingAnalysis),
		},
	}, nil
}

// UpsertDocumentInput holds input values for document metadata writes.
type UpsertDocumentInput struct {
	ID         string
	ActivityID string
	Phase      domain.Phase
	Name       string
	Mandatory  bool
	Approval   domain.ApprovalStatus
}

// UpsertDocument records or replaces phase report metadata.
func (s *Service) UpsertDocument(ctx context.Context, in UpsertDocumentInput) (domain.DocumentRecord, error) {
	if _, err := s.repo.GetActivity(ctx, in.ActivityID); err != nil {
		return domain.DocumentRecord{}, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = s.idGen()
	}
	doc, err := domain.NewDocumentRecord(domain.DocumentInput{
		ID:         id,
		ActivityID: in.ActivityID,
		Phase:      in.Phase,
		Name:       in.Name,
		Mandatory:  in.Mandatory,
		Approval:   in.Approval,
	}, s.clock())
	if err != nil {
		return domain.DocumentRecord{}, err
	}
	if err := s.repo.UpsertDocument(ctx, doc); err != nil {
		return domain.DocumentRecord{}, err
	}
	return doc, nil
}

// ListDocuments returns every document of an activity.
func (s *Service) ListDocuments(ctx context.Context, activityID string) ([]domain.DocumentRecord, error) {
	return s.repo.ListDocuments(ctx, strings.TrimSpace(activityID))
}

func (s *Service) warningsFor(ctx context.Context, activity domain.Activity) ([]domain.Warning, error) {
	docs := domain.DocumentIndex{}
	for _, phase := range domain.Phases() {
		records, err := s.repo.GetMandatoryDocuments(ctx, activity.ID, phase)
		if err != nil {
			return nil, fmt.Errorf("get mandatory documents for %s: %w", phase, err)
		}
		if len(records) > 0 {
			docs[phase] = records
		}
	}
	warnings := domain.DeriveWarnings(activity, docs, s.clock(), s.staleAfter)
	s.observer.Warnings(warnings)
	return warnings, nil
}

// checkAssignmentLimit projects the worker's month for a pending change of activity.
// Without a resolvable month an unenforced change goes through unchecked and is
// flagged incomplete; an enforced one fails.
func (s *Service) checkAssignmentLimit(ctx context.Context, activity domain.Activity, workerID string, enforce bool) (*LimitResult, bool, error) {
	result, err := s.limits.ValidateForActivity(ctx, activity, workerID)
	s.observer.LimitCheck(result, err)
	switch {
	case isScheduleInfoErr(err) && !enforce:
		return nil, true, nil
	case err != nil:
		return nil, false, err
	case enforce && result.IsOverLimit:
		return &result, false, fmt.Errorf("%w: projected %d over limit %d", ErrHonorLimitExceeded, result.ProjectedTotal, result.Limit)
	}
	return &result, false, nil
}

func (s *Service) actorID(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.ID
	}
	return domain.DefaultActorID
}
