// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/fieldwork/internal/domain"
)

// ErrInvalidRequest reports malformed or out-of-range transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrLedgerRejected reports a stage edit the progress ledger refused.
var ErrLedgerRejected = errors.New("ledger rejected edit")

// ErrConflict reports a write that collides with existing state.
var ErrConflict = errors.New("conflict")

// ErrForbidden reports a write that needs a privileged actor.
var ErrForbidden = errors.New("forbidden")

// ErrScheduleIncomplete reports an activity whose payment month cannot be resolved.
var ErrScheduleIncomplete = errors.New("insufficient schedule info")

// ErrLimitExceeded reports an enforced monthly honor limit breach.
var ErrLimitExceeded = errors.New("honor limit exceeded")

// ErrInconsistentState reports stored counters that violate conservation.
var ErrInconsistentState = errors.New("inconsistent stored state")

// ActivitySummary is one row of the activity list.
type ActivitySummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	StatusLabel     string `json:"status_label"`
	PaymentPeriod   string `json:"payment_period,omitempty"`
	AssignmentCount int    `json:"assignment_count"`
}

// StageValue is one bucket of an assignment's pipeline.
type StageValue struct {
	Stage   domain.Stage `json:"stage"`
	Value   int64        `json:"value"`
	Derived bool         `json:"derived,omitempty"`
}

// Assignment is the transport view of one worker allocation.
type Assignment struct {
	ID             string                  `json:"id"`
	ActivityID     string                  `json:"activity_id"`
	WorkerID       string                  `json:"worker_id"`
	WorkerName     string                  `json:"worker_name"`
	SupervisorName string                  `json:"supervisor_name,omitempty"`
	Phase          domain.Phase            `json:"phase"`
	Total          int64                   `json:"total"`
	Honor          int64                   `json:"honor"`
	Stages         []StageValue            `json:"stages"`
	Details        []domain.WorkloadDetail `json:"details"`
}

// PhaseProgress is the summed pipeline of one phase.
type PhaseProgress struct {
	Phase           domain.Phase `json:"phase"`
	Label           string       `json:"label"`
	Total           int64        `json:"total"`
	Stages          []StageValue `json:"stages"`
	CompletionRatio float64      `json:"completion_ratio"`
}

// ActivityDetail bundles one activity with its derived status, warnings, and progress.
type ActivityDetail struct {
	ID                 string                     `json:"id"`
	Name               string                     `json:"name"`
	Description        string                     `json:"description,omitempty"`
	Status             string                     `json:"status"`
	StatusLabel        string                     `json:"status_label"`
	Schedule           domain.Schedule            `json:"schedule"`
	PaymentPeriod      string                     `json:"payment_period,omitempty"`
	HonorariumSettings []domain.HonorariumSetting `json:"honorarium_settings"`
	Assignments        []Assignment               `json:"assignments"`
	Progress           []PhaseProgress            `json:"progress"`
	Warnings           []domain.Warning           `json:"warnings"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
	LastProgressAt     *time.Time                 `json:"last_progress_at,omitempty"`
	LastProgressBy     string                     `json:"last_progress_by,omitempty"`
}

// ActivityStatus is the derived lifecycle position plus advisory warnings.
type ActivityStatus struct {
	ActivityID  string           `json:"activity_id"`
	Status      string           `json:"status"`
	StatusLabel string           `json:"status_label"`
	Warnings    []domain.Warning `json:"warnings"`
}

// SetStageValueRequest captures one ledger edit.
type SetStageValueRequest struct {
	ActivityID   string `json:"activity_id"`
	AssignmentID string `json:"assignment_id"`
	Stage        string `json:"stage"`
	Value        int64  `json:"value"`
	ActorID      string `json:"actor_id,omitempty"`
}

// ProgressEvent is one accepted ledger edit.
type ProgressEvent struct {
	ID           int64        `json:"id"`
	AssignmentID string       `json:"assignment_id"`
	Stage        domain.Stage `json:"stage"`
	OldValue     int64        `json:"old_value"`
	NewValue     int64        `json:"new_value"`
	ActorID      string       `json:"actor_id"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// ListEventsRequest captures progress history filters.
type ListEventsRequest struct {
	ActivityID string
	Limit      int
}

// Document is one phase report's metadata.
type Document struct {
	ID         string                `json:"id"`
	ActivityID string                `json:"activity_id"`
	Phase      domain.Phase          `json:"phase"`
	Name       string                `json:"name"`
	Mandatory  bool                  `json:"mandatory"`
	Approval   domain.ApprovalStatus `json:"approval"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// UpsertDocumentRequest captures one document metadata write.
type UpsertDocumentRequest struct {
	ID         string `json:"id,omitempty"`
	ActivityID string `json:"activity_id"`
	Phase      string `json:"phase"`
	Name       string `json:"name"`
	Mandatory  bool   `json:"mandatory"`
	Approval   string `json:"approval,omitempty"`
}

// ComputeHonorRequest prices a unit count directly or from an activity's settings.
// When ActivityID is set, UnitPrice is read from the activity's TaskType setting.
type ComputeHonorRequest struct {
	UnitCount  int64  `json:"unit_count"`
	UnitPrice  int64  `json:"unit_price,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	TaskType   string `json:"task_type,omitempty"`
}

// ComputeHonorResult is the priced honor amount.
type ComputeHonorResult struct {
	UnitCount int64 `json:"unit_count"`
	UnitPrice int64 `json:"unit_price"`
	Honor     int64 `json:"honor"`
}

// HonorLimit is the effective monthly ceiling.
type HonorLimit struct {
	Limit int64 `json:"limit"`
}

// SetHonorLimitRequest captures one ceiling change.
type SetHonorLimitRequest struct {
	Limit   int64  `json:"limit"`
	ActorID string `json:"actor_id,omitempty"`
}

// LimitCheckRequest projects a worker's month. Period is "YYYY-MM". When ActivityID is
// set and Period is empty, the activity's payment month and current honor are used.
type LimitCheckRequest struct {
	WorkerID          string `json:"worker_id"`
	Period            string `json:"period,omitempty"`
	ProposedHonor     int64  `json:"proposed_honor,omitempty"`
	ActivityID        string `json:"activity_id,omitempty"`
	ExcludeActivityID string `json:"exclude_activity_id,omitempty"`
}

// LimitResult is the advisory projection of a worker's month.
type LimitResult struct {
	WorkerID       string `json:"worker_id"`
	Period         string `json:"period"`
	Limit          int64  `json:"limit"`
	ExistingTotal  int64  `json:"existing_total"`
	ProposedHonor  int64  `json:"proposed_honor"`
	ProjectedTotal int64  `json:"projected_total"`
	Headroom       int64  `json:"headroom"`
	IsOverLimit    bool   `json:"is_over_limit"`
}

// RecapRow totals one worker's honor in the recap month.
type RecapRow struct {
	WorkerID      string `json:"worker_id"`
	WorkerName    string `json:"worker_name"`
	ActivityCount int    `json:"activity_count"`
	Honor         int64  `json:"honor"`
	OverLimit     bool   `json:"over_limit"`
}

// Recap is the monthly honorarium overview.
type Recap struct {
	Period  string     `json:"period"`
	Limit   int64      `json:"limit"`
	Total   int64      `json:"total"`
	Rows    []RecapRow `json:"rows"`
	Skipped []string   `json:"skipped,omitempty"`
}

// ActivityService exposes activity reads and document writes.
type ActivityService interface {
	ListActivities(context.Context) ([]ActivitySummary, error)
	GetActivity(context.Context, string) (ActivityDetail, error)
	ActivityStatus(context.Context, string) (ActivityStatus, error)
	ListProgressEvents(context.Context, ListEventsRequest) ([]ProgressEvent, error)
	ListDocuments(context.Context, string) ([]Document, error)
	UpsertDocument(context.Context, UpsertDocumentRequest) (Document, error)
}

// ProgressService exposes ledger edits.
type ProgressService interface {
	SetStageValue(context.Context, SetStageValueRequest) (Assignment, error)
}

// HonorService exposes honor computation, the monthly ceiling, and recaps.
type HonorService interface {
	ComputeHonor(context.Context, ComputeHonorRequest) (ComputeHonorResult, error)
	GetHonorLimit(context.Context) (HonorLimit, error)
	SetHonorLimit(context.Context, SetHonorLimitRequest) (HonorLimit, error)
	ValidateHonorLimit(context.Context, LimitCheckRequest) (LimitResult, error)
	MonthlyRecap(context.Context, string) (Recap, error)
}

// Service is the full surface served over HTTP and MCP.
type Service interface {
	ActivityService
	ProgressService
	HonorService
}
