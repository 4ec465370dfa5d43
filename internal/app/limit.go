package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/fieldwork/internal/domain"
)

// LimitCheck describes one proposed payment against the monthly ceiling.
type LimitCheck struct {
	WorkerID          string        `json:"worker_id"`
	Period            domain.Period `json:"period"`
	ProposedHonor     int64         `json:"proposed_honor"`
	ExcludeActivityID string        `json:"exclude_activity_id,omitempty"`
}

// LimitResult is the advisory outcome of a limit check. Callers decide whether
// IsOverLimit blocks or only warns.
type LimitResult struct {
	WorkerID       string        `json:"worker_id"`
	Period         domain.Period `json:"period"`
	Limit          int64         `json:"limit"`
	ExistingTotal  int64         `json:"existing_total"`
	ProposedHonor  int64         `json:"proposed_honor"`
	ProjectedTotal int64         `json:"projected_total"`
	IsOverLimit    bool          `json:"is_over_limit"`
}

// Headroom is how much more honor fits under the limit, never negative.
func (r LimitResult) Headroom() int64 {
	return max(r.Limit-r.ProjectedTotal, 0)
}

// HonorLimitValidator sums a worker's honor across activities paid in one month.
// It reads without locking, so two concurrent writers can both pass a check and
// jointly exceed the ceiling.
type HonorLimitValidator struct {
	activities   ActivityStore
	settings     SettingsStore
	defaultLimit int64
}

// NewHonorLimitValidator constructs a validator. defaultLimit applies until a ceiling is stored.
func NewHonorLimitValidator(activities ActivityStore, settings SettingsStore, defaultLimit int64) *HonorLimitValidator {
	return &HonorLimitValidator{
		activities:   activities,
		settings:     settings,
		defaultLimit: defaultLimit,
	}
}

// Limit returns the stored ceiling, or the configured default.
func (v *HonorLimitValidator) Limit(ctx context.Context) (int64, error) {
	limit, ok, err := v.settings.GetHonorLimit(ctx)
	if err != nil {
		return 0, fmt.Errorf("get honor limit: %w", err)
	}
	if !ok {
		return v.defaultLimit, nil
	}
	return limit, nil
}

// Validate projects the worker's monthly total with the proposed honor added.
func (v *HonorLimitValidator) Validate(ctx context.Context, in LimitCheck) (LimitResult, error) {
	in.WorkerID = strings.TrimSpace(in.WorkerID)
	in.ExcludeActivityID = strings.TrimSpace(in.ExcludeActivityID)
	if in.WorkerID == "" {
		return LimitResult{}, domain.ErrInvalidID
	}
	if in.ProposedHonor < 0 {
		return LimitResult{}, domain.ErrInvalidInput
	}
	if in.Period.IsZero() {
		return LimitResult{}, domain.ErrInsufficientScheduleInfo
	}
	if _, err := domain.NewPeriod(int(in.Period.Month), in.Period.Year); err != nil {
		return LimitResult{}, err
	}

	limit, err := v.Limit(ctx)
	if err != nil {
		return LimitResult{}, err
	}
	activities, err := v.activities.FindActivitiesPayingWorkerInMonth(ctx, in.WorkerID, in.Period, in.ExcludeActivityID)
	if err != nil {
		return LimitResult{}, fmt.Errorf("find activities paying worker: %w", err)
	}

	var existing int64
	for _, a := range activities {
		if a.ID == in.ExcludeActivityID {
			continue
		}
		period, err := domain.ResolvePaymentPeriod(a)
		if err != nil || period != in.Period {
			continue
		}
		existing = domain.AddHonor(existing, a.WorkerHonor(in.WorkerID))
	}

	projected := domain.AddHonor(existing, in.ProposedHonor)
	return LimitResult{
		WorkerID:       in.WorkerID,
		Period:         in.Period,
		Limit:          limit,
		ExistingTotal:  existing,
		ProposedHonor:  in.ProposedHonor,
		ProjectedTotal: projected,
		IsOverLimit:    projected > limit,
	}, nil
}

// ValidateForActivity checks the worker's honor in activity against the month the
// activity pays in, excluding the activity's stored copy from the existing total.
func (v *HonorLimitValidator) ValidateForActivity(ctx context.Context, activity domain.Activity, workerID string) (LimitResult, error) {
	period, err := domain.ResolvePaymentPeriod(activity)
	if err != nil {
		return LimitResult{}, err
	}
	return v.Validate(ctx, LimitCheck{
		WorkerID:          workerID,
		Period:            period,
		ProposedHonor:     activity.WorkerHonor(strings.TrimSpace(workerID)),
		ExcludeActivityID: activity.ID,
	})
}

func isScheduleInfoErr(err error) bool {
	return errors.Is(err, domain.ErrInsufficientScheduleInfo)
}
