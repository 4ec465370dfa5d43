package domain

import (
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"
)

// TaskType identifies a kind of paid field work.
type TaskType string

const (
	TaskTypeListing     TaskType = "listing"
	TaskTypeEnumeration TaskType = "enumeration"
	TaskTypeProcessing  TaskType = "processing"
)

var phaseTaskTypes = map[Phase][]TaskType{
	PhaseDataCollection:     {TaskTypeListing, TaskTypeEnumeration},
	PhaseProcessingAnalysis: {TaskTypeProcessing},
}

// TaskTypesForPhase returns the task types a worker assigned to phase is paid for.
func TaskTypesForPhase(p Phase) []TaskType {
	return slices.Clone(phaseTaskTypes[p])
}

// AllTaskTypes returns every task type in display order.
func AllTaskTypes() []TaskType {
	return []TaskType{TaskTypeListing, TaskTypeEnumeration, TaskTypeProcessing}
}

func ParseTaskType(raw string) (TaskType, error) {
	t := TaskType(strings.TrimSpace(strings.ToLower(raw)))
	if !slices.Contains(AllTaskTypes(), t) {
		return "", ErrInvalidTaskType
	}
	return t, nil
}

// HonorariumSetting prices one task type for an activity.
type HonorariumSetting struct {
	TaskType  TaskType `json:"task_type"`
	UnitLabel string   `json:"unit_label"`
	UnitPrice int64    `json:"unit_price"`
}

func NewHonorariumSetting(taskType TaskType, unitLabel string, unitPrice int64) (HonorariumSetting, error) {
	if !slices.Contains(AllTaskTypes(), taskType) {
		return HonorariumSetting{}, ErrInvalidTaskType
	}
	if unitPrice < 0 {
		return HonorariumSetting{}, ErrInvalidInput
	}
	unitLabel = strings.TrimSpace(unitLabel)
	if unitLabel == "" {
		unitLabel = defaultUnitLabel(taskType)
	}
	return HonorariumSetting{TaskType: taskType, UnitLabel: unitLabel, UnitPrice: unitPrice}, nil
}

func defaultUnitLabel(t TaskType) string {
	switch t {
	case TaskTypeListing:
		return "household"
	case TaskTypeEnumeration:
		return "respondent"
	default:
		return "document"
	}
}

// WorkloadDetail is one task type's share of an assignment. HonorAmount is always
// UnitCount times the activity's unit price for TaskType.
type WorkloadDetail struct {
	TaskType    TaskType `json:"task_type"`
	UnitCount   int64    `json:"unit_count"`
	HonorAmount int64    `json:"honor_amount"`
}

// ComputeHonor multiplies a unit count by its unit price in whole currency units.
func ComputeHonor(unitCount, unitPrice int64) (int64, error) {
	if unitCount < 0 || unitPrice < 0 {
		return 0, ErrInvalidInput
	}
	if unitPrice != 0 && unitCount > math.MaxInt64/unitPrice {
		return 0, ErrInvalidInput
	}
	return unitCount * unitPrice, nil
}

// AggregateAssignmentHonor sums the honor of every detail of one assignment.
func AggregateAssignmentHonor(details []WorkloadDetail) int64 {
	var total int64
	for _, d := range details {
		total = AddHonor(total, d.HonorAmount)
	}
	return total
}

// AddHonor adds two honor amounts, saturating at math.MaxInt64.
func AddHonor(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// ParseUnitCount reads a unit count typed into a form. Blank or non-numeric input is a
// zero count so partially filled forms keep working; a negative number is rejected.
// Thousand separators ("1.500", "1,500", "1 500") are accepted only between full
// three-digit groups, so "12.5" is an error rather than 125.
func ParseUnitCount(raw string) (int64, error) {
	cleaned, err := ungroupDigits(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if cleaned == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return 0, ErrInvalidInput
	}
	if err != nil {
		return 0, nil
	}
	if n < 0 {
		return 0, ErrInvalidInput
	}
	return n, nil
}

func isDigitSeparator(r rune) bool {
	return r == '.' || r == ',' || r == ' ' || r == '_'
}

// ungroupDigits drops thousand separators from a signed digit string. Input holding
// anything besides digits and separators is returned as is.
func ungroupDigits(s string) (string, error) {
	body := strings.TrimPrefix(s, "-")
	if body == "" || strings.ContainsFunc(body, func(r rune) bool {
		return (r < '0' || r > '9') && !isDigitSeparator(r)
	}) {
		return s, nil
	}
	var b strings.Builder
	if len(body) < len(s) {
		b.WriteByte('-')
	}
	group, seps := 0, 0
	for _, r := range body {
		if !isDigitSeparator(r) {
			b.WriteRune(r)
			group++
			continue
		}
		if group == 0 || (seps == 0 && group > 3) || (seps > 0 && group != 3) {
			return "", ErrInvalidInput
		}
		group = 0
		seps++
	}
	if seps > 0 && group != 3 {
		return "", ErrInvalidInput
	}
	return b.String(), nil
}
