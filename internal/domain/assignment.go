package domain

import (
	"slices"
	"strings"
)

// WorkerAssignment allocates one worker to one assignable phase of an activity.
type WorkerAssignment struct {
	ID             string
	ActivityID     string
	WorkerID       string
	WorkerName     string
	SupervisorName string
	Phase          Phase
	Details        []WorkloadDetail
	Counters       StageCounters
}

// WorkerAssignmentInput holds values for Activity.AddAssignment. Units missing a valid
// task type of the phase default to zero.
type WorkerAssignmentInput struct {
	ID             string
	WorkerID       string
	WorkerName     string
	SupervisorName string
	Phase          Phase
	Units          map[TaskType]int64
}

func newWorkerAssignment(activityID string, in WorkerAssignmentInput) (WorkerAssignment, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.WorkerID = strings.TrimSpace(in.WorkerID)
	in.WorkerName = strings.TrimSpace(in.WorkerName)
	in.SupervisorName = strings.TrimSpace(in.SupervisorName)
	if in.ID == "" || in.WorkerID == "" || strings.TrimSpace(activityID) == "" {
		return WorkerAssignment{}, ErrInvalidID
	}
	if in.WorkerName == "" {
		in.WorkerName = in.WorkerID
	}
	if !in.Phase.IsAssignable() {
		return WorkerAssignment{}, ErrInvalidPhase
	}
	valid := TaskTypesForPhase(in.Phase)
	for t, units := range in.Units {
		if !slices.Contains(valid, t) {
			return WorkerAssignment{}, ErrTaskTypeMismatch
		}
		if units < 0 {
			return WorkerAssignment{}, ErrInvalidInput
		}
	}

	details := make([]WorkloadDetail, 0, len(valid))
	var total int64
	for _, t := range valid {
		units := in.Units[t]
		details = append(details, WorkloadDetail{TaskType: t, UnitCount: units})
		total += units
	}
	counters, err := NewStageCounters(in.Phase, total)
	if err != nil {
		return WorkerAssignment{}, err
	}
	return WorkerAssignment{
		ID:             in.ID,
		ActivityID:     activityID,
		WorkerID:       in.WorkerID,
		WorkerName:     in.WorkerName,
		SupervisorName: in.SupervisorName,
		Phase:          in.Phase,
		Details:        details,
		Counters:       counters,
	}, nil
}

// TotalWorkload is the unit count allocated across all task types.
func (a WorkerAssignment) TotalWorkload() int64 {
	var total int64
	for _, d := range a.Details {
		total += d.UnitCount
	}
	return total
}

// Honor is the assignment's total honor.
func (a WorkerAssignment) Honor() int64 {
	return AggregateAssignmentHonor(a.Details)
}

// Validate checks the phase/task-type and conservation invariants of stored data.
func (a WorkerAssignment) Validate() error {
	if !a.Phase.IsAssignable() {
		return ErrInvalidPhase
	}
	valid := TaskTypesForPhase(a.Phase)
	if len(a.Details) != len(valid) {
		return ErrTaskTypeMismatch
	}
	for _, d := range a.Details {
		if !slices.Contains(valid, d.TaskType) {
			return ErrTaskTypeMismatch
		}
		if d.UnitCount < 0 || d.HonorAmount < 0 {
			return ErrInvalidInput
		}
	}
	if a.Counters.Phase != a.Phase || a.Counters.Total != a.TotalWorkload() {
		return ErrConservationViolation
	}
	return a.Counters.Verify()
}

func (a *WorkerAssignment) recomputeHonor(taskType TaskType, unitPrice int64) error {
	idx := a.detailIndex(taskType)
	if idx < 0 {
		return nil
	}
	honor, err := ComputeHonor(a.Details[idx].UnitCount, unitPrice)
	if err != nil {
		return err
	}
	a.Details[idx].HonorAmount = honor
	return nil
}

func (a WorkerAssignment) detailIndex(t TaskType) int {
	return slices.IndexFunc(a.Details, func(d WorkloadDetail) bool { return d.TaskType == t })
}

func (a WorkerAssignment) clone() WorkerAssignment {
	out := a
	out.Details = slices.Clone(a.Details)
	return out
}
