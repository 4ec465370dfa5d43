package domain

import (
	"slices"
	"strconv"
	"strings"
)

// Stage names one bucket of an assignment's progress pipeline.
type Stage string

// Data-collection stages.
const (
	StageOpen      Stage = "open"
	StageSubmitted Stage = "submitted"
	StageReviewed  Stage = "reviewed"
	StageApproved  Stage = "approved"
)

// Processing stages.
const (
	StageNotEntered Stage = "not_entered"
	StageEntered    Stage = "entered"
	StageValidated  Stage = "validated"
	StageClean      Stage = "clean"
)

// StageCount is the number of buckets in every pipeline.
const StageCount = 4

// Pipeline is the ordered stage list of one assignment phase. The first stage is derived.
type Pipeline [StageCount]Stage

var (
	DataCollectionPipeline = Pipeline{StageOpen, StageSubmitted, StageReviewed, StageApproved}
	ProcessingPipeline     = Pipeline{StageNotEntered, StageEntered, StageValidated, StageClean}
)

// PipelineForPhase returns the stage pipeline used by assignments of phase.
func PipelineForPhase(p Phase) (Pipeline, error) {
	switch p {
	case PhaseDataCollection:
		return DataCollectionPipeline, nil
	case PhaseProcessingAnalysis:
		return ProcessingPipeline, nil
	default:
		return Pipeline{}, ErrInvalidPhase
	}
}

// Index returns the position of stage in the pipeline, or -1.
func (p Pipeline) Index(stage Stage) int {
	return slices.Index(p[:], stage)
}

// Derived returns the first, computed-only stage.
func (p Pipeline) Derived() Stage {
	return p[0]
}

// Terminal returns the last stage.
func (p Pipeline) Terminal() Stage {
	return p[StageCount-1]
}

// StageCounters tracks how many of an assignment's units sit in each stage.
// Values always sum to Total.
type StageCounters struct {
	Phase  Phase             `json:"phase"`
	Total  int64             `json:"total"`
	Values [StageCount]int64 `json:"values"`
}

// NewStageCounters places the whole workload in the derived first stage.
func NewStageCounters(phase Phase, total int64) (StageCounters, error) {
	if !phase.IsAssignable() {
		return StageCounters{}, ErrInvalidPhase
	}
	if total < 0 {
		return StageCounters{}, ErrInvalidValue
	}
	c := StageCounters{Phase: phase, Total: total}
	c.Values[0] = total
	return c, nil
}

// RestoreStageCounters rebuilds counters from stored non-derived values and checks them.
func RestoreStageCounters(phase Phase, total int64, progressed [StageCount - 1]int64) (StageCounters, error) {
	c, err := NewStageCounters(phase, total)
	if err != nil {
		return StageCounters{}, err
	}
	var moved int64
	for i, v := range progressed {
		c.Values[i+1] = v
		moved += v
	}
	c.Values[0] = total - moved
	if err := c.Verify(); err != nil {
		return StageCounters{}, err
	}
	return c, nil
}

// Pipeline returns the stage order for the counters' phase.
func (c StageCounters) Pipeline() Pipeline {
	p, _ := PipelineForPhase(c.Phase)
	return p
}

// Value returns the units currently in stage.
func (c StageCounters) Value(stage Stage) (int64, error) {
	idx := c.Pipeline().Index(stage)
	if idx < 0 {
		return 0, ErrUnknownStage
	}
	return c.Values[idx], nil
}

// Sum adds every bucket.
func (c StageCounters) Sum() int64 {
	var sum int64
	for _, v := range c.Values {
		sum += v
	}
	return sum
}

// Completed returns the units in the terminal stage.
func (c StageCounters) Completed() int64 {
	return c.Values[StageCount-1]
}

// Verify checks the conservation and non-negativity invariants.
func (c StageCounters) Verify() error {
	for _, v := range c.Values {
		if v < 0 {
			return ErrConservationViolation
		}
	}
	if c.Sum() != c.Total {
		return ErrConservationViolation
	}
	return nil
}

// SetStageValue moves units between stage and the stage just before it so that stage
// holds newValue. The derived first stage cannot be set; a transfer needing more units
// than the upstream stage holds is rejected and leaves the counters untouched.
func (c *StageCounters) SetStageValue(stage Stage, newValue int64) error {
	pipeline := c.Pipeline()
	idx := pipeline.Index(stage)
	if idx < 0 {
		return &StageError{Stage: stage, Err: ErrUnknownStage}
	}
	if idx == 0 {
		return &StageError{Stage: stage, Err: ErrDerivedStageImmutable}
	}
	if newValue < 0 {
		return &StageError{Stage: stage, Requested: newValue, Err: ErrInvalidValue}
	}

	delta := newValue - c.Values[idx]
	if delta == 0 {
		return nil
	}
	prev := idx - 1
	newPrev := c.Values[prev] - delta
	if newPrev < 0 {
		return &StageError{
			Stage:     stage,
			Upstream:  pipeline[prev],
			Requested: delta,
			Available: c.Values[prev],
			Err:       ErrInsufficientUpstream,
		}
	}

	before := c.Values
	c.Values[prev] = newPrev
	c.Values[idx] = newValue
	if err := c.Verify(); err != nil {
		c.Values = before
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// SetStageValueRaw parses user text before applying SetStageValue.
func (c *StageCounters) SetStageValueRaw(stage Stage, raw string) error {
	v, err := ParseStageValue(raw)
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return c.SetStageValue(stage, v)
}

// ParseStageValue accepts only a plain non-negative integer.
func ParseStageValue(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		return 0, ErrInvalidValue
	}
	return v, nil
}

// Resize changes the allocated workload and recomputes the derived first stage.
// Units already moved past the first stage are never dropped.
func (c *StageCounters) Resize(total int64) error {
	if total < 0 {
		return ErrInvalidValue
	}
	moved := c.Sum() - c.Values[0]
	if total < moved {
		return &StageError{
			Stage:     c.Pipeline().Derived(),
			Requested: moved,
			Available: total,
			Err:       ErrInsufficientUpstream,
		}
	}
	before := *c
	c.Total = total
	c.Values[0] = total - moved
	if err := c.Verify(); err != nil {
		*c = before
		return err
	}
	return nil
}

// StageTotals is the per-stage sum over several assignments of one phase.
type StageTotals struct {
	Phase  Phase             `json:"phase"`
	Total  int64             `json:"total"`
	Values [StageCount]int64 `json:"values"`
}

// SumCounters aggregates counters that share a phase; others are skipped.
func SumCounters(phase Phase, counters []StageCounters) StageTotals {
	out := StageTotals{Phase: phase}
	for _, c := range counters {
		if c.Phase != phase {
			continue
		}
		out.Total += c.Total
		for i, v := range c.Values {
			out.Values[i] += v
		}
	}
	return out
}

// CompletionRatio is the terminal-stage share of the total, 0 when nothing is allocated.
func (t StageTotals) CompletionRatio() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Values[StageCount-1]) / float64(t.Total)
}
