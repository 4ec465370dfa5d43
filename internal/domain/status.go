package domain

import (
	"fmt"
	"time"
)

// Status is the derived lifecycle position of an activity.
type Status string

const (
	StatusPreparation             Status = Status(PhasePreparation)
	StatusDataCollection          Status = Status(PhaseDataCollection)
	StatusProcessingAnalysis      Status = Status(PhaseProcessingAnalysis)
	StatusDisseminationEvaluation Status = Status(PhaseDisseminationEvaluation)
	StatusCompleted               Status = "completed"
)

// Phase returns the phase the status sits in; Completed has none.
func (s Status) Phase() (Phase, bool) {
	if s == StatusCompleted {
		return "", false
	}
	return Phase(s), true
}

// Label returns the human readable status name.
func (s Status) Label() string {
	if s == StatusCompleted {
		return "Completed"
	}
	return Phase(s).Label()
}

// IsActiveWork reports whether workers are expected to be posting progress.
func (s Status) IsActiveWork() bool {
	return s == StatusDataCollection || s == StatusProcessingAnalysis
}

// DeriveStatus returns the most advanced phase whose start day has been reached.
// The activity is Completed once the dissemination end day has passed.
func DeriveStatus(a Activity, now time.Time) Status {
	today := civilDay(now)
	if end := a.Schedule.DisseminationEvaluation.End; end != nil && today.After(*end) {
		return StatusCompleted
	}
	for i := len(orderedPhases) - 1; i > 0; i-- {
		p := orderedPhases[i]
		if start := a.Schedule.Range(p).Start; start != nil && !today.Before(*start) {
			return Status(p)
		}
	}
	return StatusPreparation
}

// WarningKind classifies an advisory warning.
type WarningKind string

const (
	WarningLateReport    WarningKind = "late_report"
	WarningStaleProgress WarningKind = "stale_progress"
)

// Warning is advisory metadata about an activity; it never blocks an operation.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Phase   Phase       `json:"phase"`
	Message string      `json:"message"`
}

// DeriveWarnings flags phases that ended with unapproved mandatory reports and active
// work phases with no progress update for longer than staleAfter.
func DeriveWarnings(a Activity, docs DocumentIndex, now time.Time, staleAfter time.Duration) []Warning {
	today := civilDay(now)
	var out []Warning
	for _, p := range orderedPhases {
		end := a.Schedule.Range(p).End
		if end == nil || !today.After(*end) || len(docs[p]) == 0 {
			continue
		}
		if !docs.AllApproved(p) {
			out = append(out, Warning{
				Kind:    WarningLateReport,
				Phase:   p,
				Message: fmt.Sprintf("%s report approved late", p.Label()),
			})
		}
	}

	status := DeriveStatus(a, now)
	if !status.IsActiveWork() {
		return out
	}
	ref := a.CreatedAt
	if a.LastProgressAt != nil {
		ref = *a.LastProgressAt
	}
	if ref.IsZero() {
		return out
	}
	if idle := now.Sub(ref); idle > staleAfter {
		phase, _ := status.Phase()
		out = append(out, Warning{
			Kind:    WarningStaleProgress,
			Phase:   phase,
			Message: fmt.Sprintf("%s progress not updated for %s", phase.Label(), humanDays(idle)),
		})
	}
	return out
}

func humanDays(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days <= 1 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return fmt.Sprintf("%d days", days)
}
