package domain

import (
	"slices"
	"strings"
	"time"
)

// Phase identifies one of the four sequential phases of an activity.
type Phase string

// Phase values in schedule order.
const (
	PhasePreparation             Phase = "preparation"
	PhaseDataCollection          Phase = "data_collection"
	PhaseProcessingAnalysis      Phase = "processing_analysis"
	PhaseDisseminationEvaluation Phase = "dissemination_evaluation"
)

var orderedPhases = []Phase{
	PhasePreparation,
	PhaseDataCollection,
	PhaseProcessingAnalysis,
	PhaseDisseminationEvaluation,
}

var phaseLabels = map[Phase]string{
	PhasePreparation:             "Preparation",
	PhaseDataCollection:          "Data collection",
	PhaseProcessingAnalysis:      "Processing & analysis",
	PhaseDisseminationEvaluation: "Dissemination & evaluation",
}

// Phases returns all phases in schedule order.
func Phases() []Phase {
	return slices.Clone(orderedPhases)
}

// ParsePhase normalizes user input into a known phase.
func ParsePhase(raw string) (Phase, error) {
	p := Phase(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(raw)), "-", "_"))
	if !slices.Contains(orderedPhases, p) {
		return "", ErrInvalidPhase
	}
	return p, nil
}

// Label returns the human readable phase name.
func (p Phase) Label() string {
	if label, ok := phaseLabels[p]; ok {
		return label
	}
	return string(p)
}

// IsAssignable reports whether workers can be allocated to the phase.
func (p Phase) IsAssignable() bool {
	return p == PhaseDataCollection || p == PhaseProcessingAnalysis
}

// DateRange is an optional start/end pair for one phase. Only the calendar day matters.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// NewDateRange normalizes both ends to midnight UTC and rejects an end before the start.
func NewDateRange(start, end *time.Time) (DateRange, error) {
	r := DateRange{Start: normalizeDate(start), End: normalizeDate(end)}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return DateRange{}, ErrInvalidDateRange
	}
	return r, nil
}

// Schedule holds the date range of every phase.
type Schedule struct {
	Preparation             DateRange `json:"preparation"`
	DataCollection          DateRange `json:"data_collection"`
	ProcessingAnalysis      DateRange `json:"processing_analysis"`
	DisseminationEvaluation DateRange `json:"dissemination_evaluation"`
}

// Range returns the date range configured for phase.
func (s Schedule) Range(p Phase) DateRange {
	switch p {
	case PhasePreparation:
		return s.Preparation
	case PhaseDataCollection:
		return s.DataCollection
	case PhaseProcessingAnalysis:
		return s.ProcessingAnalysis
	case PhaseDisseminationEvaluation:
		return s.DisseminationEvaluation
	default:
		return DateRange{}
	}
}

// SetRange replaces the date range of phase.
func (s *Schedule) SetRange(p Phase, r DateRange) error {
	r, err := NewDateRange(r.Start, r.End)
	if err != nil {
		return err
	}
	switch p {
	case PhasePreparation:
		s.Preparation = r
	case PhaseDataCollection:
		s.DataCollection = r
	case PhaseProcessingAnalysis:
		s.ProcessingAnalysis = r
	case PhaseDisseminationEvaluation:
		s.DisseminationEvaluation = r
	default:
		return ErrInvalidPhase
	}
	return nil
}

// EarliestStart returns the first start date found in schedule order.
func (s Schedule) EarliestStart() *time.Time {
	var earliest *time.Time
	for _, p := range orderedPhases {
		start := s.Range(p).Start
		if start == nil {
			continue
		}
		if earliest == nil || start.Before(*earliest) {
			earliest = start
		}
	}
	return earliest
}

// validate rejects an inverted range and a phase that starts before an earlier phase.
func (s Schedule) validate() error {
	var prevStart *time.Time
	for _, p := range orderedPhases {
		r := s.Range(p)
		norm, err := NewDateRange(r.Start, r.End)
		if err != nil {
			return err
		}
		if norm.Start == nil {
			continue
		}
		if prevStart != nil && norm.Start.Before(*prevStart) {
			return ErrInvalidDateRange
		}
		prevStart = norm.Start
	}
	return nil
}

func (s Schedule) normalized() Schedule {
	out := Schedule{}
	for _, p := range orderedPhases {
		r := s.Range(p)
		_ = out.SetRange(p, DateRange{Start: r.Start, End: r.End})
	}
	return out
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := civilDay(*t)
	return &d
}

// civilDay drops the clock part while keeping the calendar day as seen in t's location.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
