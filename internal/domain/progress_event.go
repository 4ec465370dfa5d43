package domain

import "time"

// ProgressEvent records one accepted stage edit on an assignment.
type ProgressEvent struct {
	ID           int64
	ActivityID   string
	AssignmentID string
	Stage        Stage
	OldValue     int64
	NewValue     int64
	ActorID      string
	OccurredAt   time.Time
}

// DefaultActorID attributes edits that arrive without a caller identity.
const DefaultActorID = "fieldwork-user"
