package domain

import (
	"slices"
	"strings"
	"time"
)

// Activity is one field-work initiative with four sequential phases.
type Activity struct {
	ID                 string
	Name               string
	Description        string
	Schedule           Schedule
	PaymentPeriod      *Period
	HonorariumSettings []HonorariumSetting
	Assignments        []WorkerAssignment
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastProgressAt     *time.Time
	LastProgressBy     string
}

// ActivityInput holds values for NewActivity.
type ActivityInput struct {
	ID                 string
	Name               string
	Description        string
	Schedule           Schedule
	PaymentPeriod      *Period
	HonorariumSettings []HonorariumSetting
}

func NewActivity(in ActivityInput, now time.Time) (Activity, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.ID == "" {
		return Activity{}, ErrInvalidID
	}
	if in.Name == "" {
		return Activity{}, ErrInvalidName
	}
	if err := in.Schedule.validate(); err != nil {
		return Activity{}, err
	}
	var period *Period
	if in.PaymentPeriod != nil && !in.PaymentPeriod.IsZero() {
		p, err := NewPeriod(int(in.PaymentPeriod.Month), in.PaymentPeriod.Year)
		if err != nil {
			return Activity{}, err
		}
		period = &p
	}

	a := Activity{
		ID:            in.ID,
		Name:          in.Name,
		Description:   in.Description,
		Schedule:      in.Schedule.normalized(),
		PaymentPeriod: period,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
	for _, s := range in.HonorariumSettings {
		setting, err := NewHonorariumSetting(s.TaskType, s.UnitLabel, s.UnitPrice)
		if err != nil {
			return Activity{}, err
		}
		if a.settingIndex(setting.TaskType) >= 0 {
			return Activity{}, ErrInvalidTaskType
		}
		a.HonorariumSettings = append(a.HonorariumSettings, setting)
	}
	a.sortSettings()
	return a, nil
}

// UpdateDetails replaces name, description, schedule, and payment month.
func (a *Activity) UpdateDetails(name, description string, schedule Schedule, period *Period, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if err := schedule.validate(); err != nil {
		return err
	}
	var resolved *Period
	if period != nil && !period.IsZero() {
		p, err := NewPeriod(int(period.Month), period.Year)
		if err != nil {
			return err
		}
		resolved = &p
	}
	a.Name = name
	a.Description = strings.TrimSpace(description)
	a.Schedule = schedule.normalized()
	a.PaymentPeriod = resolved
	a.UpdatedAt = now.UTC()
	return nil
}

// UnitPrice returns the configured price of taskType, zero when unset.
func (a Activity) UnitPrice(taskType TaskType) int64 {
	if idx := a.settingIndex(taskType); idx >= 0 {
		return a.HonorariumSettings[idx].UnitPrice
	}
	return 0
}

// Setting returns the honorarium setting of taskType.
func (a Activity) Setting(taskType TaskType) (HonorariumSetting, bool) {
	idx := a.settingIndex(taskType)
	if idx < 0 {
		return HonorariumSetting{}, false
	}
	return a.HonorariumSettings[idx], true
}

// SetHonorariumSetting upserts the price of one task type and recomputes the honor of
// every workload detail of that type in the activity.
func (a *Activity) SetHonorariumSetting(in HonorariumSetting, now time.Time) error {
	setting, err := NewHonorariumSetting(in.TaskType, in.UnitLabel, in.UnitPrice)
	if err != nil {
		return err
	}
	assignments := cloneAssignments(a.Assignments)
	for i := range assignments {
		if err := assignments[i].recomputeHonor(setting.TaskType, setting.UnitPrice); err != nil {
			return err
		}
	}
	if idx := a.settingIndex(setting.TaskType); idx >= 0 {
		a.HonorariumSettings[idx] = setting
	} else {
		a.HonorariumSettings = append(a.HonorariumSettings, setting)
		a.sortSettings()
	}
	a.Assignments = assignments
	a.UpdatedAt = now.UTC()
	return nil
}

// AddAssignment allocates a worker to one assignable phase.
func (a *Activity) AddAssignment(in WorkerAssignmentInput, now time.Time) (WorkerAssignment, error) {
	assignment, err := newWorkerAssignment(a.ID, in)
	if err != nil {
		return WorkerAssignment{}, err
	}
	if a.assignmentIndex(assignment.ID) >= 0 {
		return WorkerAssignment{}, ErrInvalidID
	}
	for _, existing := range a.Assignments {
		if existing.WorkerID == assignment.WorkerID && existing.Phase == assignment.Phase {
			return WorkerAssignment{}, ErrDuplicateAssignment
		}
	}
	for _, t := range TaskTypesForPhase(assignment.Phase) {
		if err := assignment.recomputeHonor(t, a.UnitPrice(t)); err != nil {
			return WorkerAssignment{}, err
		}
	}
	a.Assignments = append(a.Assignments, assignment)
	a.UpdatedAt = now.UTC()
	return assignment, nil
}

// RemoveAssignment drops one assignment and its counters.
func (a *Activity) RemoveAssignment(id string, now time.Time) error {
	idx := a.assignmentIndex(id)
	if idx < 0 {
		return ErrInvalidID
	}
	a.Assignments = slices.Delete(a.Assignments, idx, idx+1)
	a.UpdatedAt = now.UTC()
	return nil
}

// Assignment returns a copy of the assignment with id.
func (a Activity) Assignment(id string) (WorkerAssignment, bool) {
	idx := a.assignmentIndex(id)
	if idx < 0 {
		return WorkerAssignment{}, false
	}
	return a.Assignments[idx].clone(), true
}

// SetAssignmentWorkload changes the allocated unit count of one task type, recomputing
// its honor and the derived first stage.
func (a *Activity) SetAssignmentWorkload(assignmentID string, taskType TaskType, unitCount int64, now time.Time) error {
	idx := a.assignmentIndex(assignmentID)
	if idx < 0 {
		return ErrInvalidID
	}
	if unitCount < 0 {
		return ErrInvalidInput
	}
	next := a.Assignments[idx].clone()
	detail := next.detailIndex(taskType)
	if detail < 0 {
		return ErrUnknownTaskType
	}
	honor, err := ComputeHonor(unitCount, a.UnitPrice(taskType))
	if err != nil {
		return err
	}
	next.Details[detail].UnitCount = unitCount
	next.Details[detail].HonorAmount = honor
	if err := next.Counters.Resize(next.TotalWorkload()); err != nil {
		return err
	}
	a.Assignments[idx] = next
	a.UpdatedAt = now.UTC()
	return nil
}

// SetStageValue applies one ledger edit to an assignment and stamps the last progress update.
func (a *Activity) SetStageValue(assignmentID string, stage Stage, value int64, actorID string, now time.Time) (ProgressEvent, error) {
	idx := a.assignmentIndex(assignmentID)
	if idx < 0 {
		return ProgressEvent{}, ErrInvalidID
	}
	counters := a.Assignments[idx].Counters
	old, err := counters.Value(stage)
	if err != nil {
		return ProgressEvent{}, &StageError{Stage: stage, Err: err}
	}
	if err := counters.SetStageValue(stage, value); err != nil {
		return ProgressEvent{}, err
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		actorID = DefaultActorID
	}
	ts := now.UTC()
	a.Assignments[idx].Counters = counters
	if old != value {
		a.LastProgressAt = &ts
		a.LastProgressBy = actorID
		a.UpdatedAt = ts
	}
	return ProgressEvent{
		ActivityID:   a.ID,
		AssignmentID: assignmentID,
		Stage:        stage,
		OldValue:     old,
		NewValue:     value,
		ActorID:      actorID,
		OccurredAt:   ts,
	}, nil
}

// WorkerHonor sums the honor owed to workerID across all assignments of the activity.
func (a Activity) WorkerHonor(workerID string) int64 {
	var total int64
	for _, assignment := range a.Assignments {
		if assignment.WorkerID == workerID {
			total = AddHonor(total, assignment.Honor())
		}
	}
	return total
}

// PaysWorker reports whether workerID holds any assignment.
func (a Activity) PaysWorker(workerID string) bool {
	return slices.ContainsFunc(a.Assignments, func(as WorkerAssignment) bool {
		return as.WorkerID == workerID
	})
}

// PhaseProgress aggregates the counters of every assignment in phase.
func (a Activity) PhaseProgress(p Phase) StageTotals {
	counters := make([]StageCounters, 0, len(a.Assignments))
	for _, as := range a.Assignments {
		counters = append(counters, as.Counters)
	}
	return SumCounters(p, counters)
}

// Clone returns a deep copy.
func (a Activity) Clone() Activity {
	out := a
	out.HonorariumSettings = slices.Clone(a.HonorariumSettings)
	out.Assignments = cloneAssignments(a.Assignments)
	if a.PaymentPeriod != nil {
		p := *a.PaymentPeriod
		out.PaymentPeriod = &p
	}
	if a.LastProgressAt != nil {
		ts := *a.LastProgressAt
		out.LastProgressAt = &ts
	}
	return out
}

func (a Activity) settingIndex(t TaskType) int {
	return slices.IndexFunc(a.HonorariumSettings, func(s HonorariumSetting) bool { return s.TaskType == t })
}

func (a Activity) assignmentIndex(id string) int {
	id = strings.TrimSpace(id)
	return slices.IndexFunc(a.Assignments, func(as WorkerAssignment) bool { return as.ID == id })
}

func (a *Activity) sortSettings() {
	order := AllTaskTypes()
	slices.SortFunc(a.HonorariumSettings, func(x, y HonorariumSetting) int {
		return slices.Index(order, x.TaskType) - slices.Index(order, y.TaskType)
	})
}

func cloneAssignments(in []WorkerAssignment) []WorkerAssignment {
	if in == nil {
		return nil
	}
	out := make([]WorkerAssignment, len(in))
	for i, as := range in {
		out[i] = as.clone()
	}
	return out
}
