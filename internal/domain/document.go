package domain

import (
	"slices"
	"strings"
	"time"
)

// ApprovalStatus is the review state of an uploaded document.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

var validApprovals = []ApprovalStatus{ApprovalPending, ApprovalApproved, ApprovalRejected}

// DocumentRecord is the metadata of one phase report. File contents live elsewhere.
type DocumentRecord struct {
	ID         string
	ActivityID string
	Phase      Phase
	Name       string
	Mandatory  bool
	Approval   ApprovalStatus
	UpdatedAt  time.Time
}

// DocumentInput holds values for NewDocumentRecord.
type DocumentInput struct {
	ID         string
	ActivityID string
	Phase      Phase
	Name       string
	Mandatory  bool
	Approval   ApprovalStatus
}

func NewDocumentRecord(in DocumentInput, now time.Time) (DocumentRecord, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ActivityID = strings.TrimSpace(in.ActivityID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.ActivityID == "" {
		return DocumentRecord{}, ErrInvalidID
	}
	if in.Name == "" {
		return DocumentRecord{}, ErrInvalidName
	}
	if !slices.Contains(orderedPhases, in.Phase) {
		return DocumentRecord{}, ErrInvalidPhase
	}
	if in.Approval == "" {
		in.Approval = ApprovalPending
	}
	if !slices.Contains(validApprovals, in.Approval) {
		return DocumentRecord{}, ErrInvalidInput
	}
	return DocumentRecord{
		ID:         in.ID,
		ActivityID: in.ActivityID,
		Phase:      in.Phase,
		Name:       in.Name,
		Mandatory:  in.Mandatory,
		Approval:   in.Approval,
		UpdatedAt:  now.UTC(),
	}, nil
}

// ParseApprovalStatus normalizes a stored or typed approval value.
func ParseApprovalStatus(raw string) (ApprovalStatus, error) {
	s := ApprovalStatus(strings.TrimSpace(strings.ToLower(raw)))
	if !slices.Contains(validApprovals, s) {
		return "", ErrInvalidInput
	}
	return s, nil
}

// DocumentIndex groups the mandatory documents of one activity by phase.
type DocumentIndex map[Phase][]DocumentRecord

// AllApproved reports whether every mandatory document of phase is approved.
// A phase without mandatory documents counts as approved.
func (idx DocumentIndex) AllApproved(p Phase) bool {
	for _, doc := range idx[p] {
		if doc.Mandatory && doc.Approval != ApprovalApproved {
			return false
		}
	}
	return true
}
