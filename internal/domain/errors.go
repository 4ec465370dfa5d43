package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidPhase     = errors.New("invalid phase")
	ErrInvalidTaskType  = errors.New("invalid task type")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrTaskTypeMismatch = errors.New("task type does not belong to assignment phase")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrUnknownTaskType  = errors.New("task type not present on assignment")

	ErrDuplicateAssignment = errors.New("worker already assigned to phase")
)

// Calculator, ledger, and limit validation failures surfaced to callers.
var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrInvalidValue             = errors.New("invalid stage value")
	ErrDerivedStageImmutable    = errors.New("derived stage cannot be edited")
	ErrInsufficientUpstream     = errors.New("insufficient upstream units")
	ErrConservationViolation    = errors.New("stage counters do not sum to total workload")
	ErrInsufficientScheduleInfo = errors.New("insufficient schedule info to resolve payment month")
)

// StageError carries the stage context of a rejected ledger edit.
type StageError struct {
	Stage     Stage
	Upstream  Stage
	Requested int64
	Available int64
	Err       error
}

func (e *StageError) Error() string {
	if e.Upstream != "" {
		return fmt.Sprintf("%s: set %s needs %d from %s, only %d available", e.Err, e.Stage, e.Requested, e.Upstream, e.Available)
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Stage)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
