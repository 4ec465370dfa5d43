package app

import (
	"context"

	"github.com/hylla/fieldwork/internal/domain"
)

// ActivityStore persists activities with their settings, assignments, and counters.
// Every write stores the whole aggregate atomically.
type ActivityStore interface {
	CreateActivity(context.Context, domain.Activity) error
	UpdateActivity(context.Context, domain.Activity) error
	GetActivity(context.Context, string) (domain.Activity, error)
	ListActivities(context.Context) ([]domain.Activity, error)
	// FindActivitiesPayingWorkerInMonth returns every activity, except excludeID, that
	// holds an assignment for workerID and resolves to period.
	FindActivitiesPayingWorkerInMonth(ctx context.Context, workerID string, period domain.Period, excludeID string) ([]domain.Activity, error)
	// UpdateActivityWithEvent stores the aggregate and appends event to its progress
	// log in the same transaction.
	UpdateActivityWithEvent(context.Context, domain.Activity, domain.ProgressEvent) error
	ListProgressEvents(context.Context, string, int) ([]domain.ProgressEvent, error)
}

// SettingsStore holds process-wide settings.
type SettingsStore interface {
	// GetHonorLimit reports false when no ceiling was ever stored.
	GetHonorLimit(context.Context) (int64, bool, error)
	SetHonorLimit(context.Context, int64) error
}

// DocumentStore holds phase report metadata.
type DocumentStore interface {
	GetMandatoryDocuments(context.Context, string, domain.Phase) ([]domain.DocumentRecord, error)
	ListDocuments(context.Context, string) ([]domain.DocumentRecord, error)
	UpsertDocument(context.Context, domain.DocumentRecord) error
}

// Repository is the full persistence surface used by Service.
type Repository interface {
	ActivityStore
	SettingsStore
	DocumentStore
}
