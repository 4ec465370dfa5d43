package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hylla/fieldwork/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "fieldwork.snapshot.v1"

// Snapshot represents snapshot data used by this package.
type Snapshot struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	HonorLimit *int64             `json:"honor_limit,omitempty"`
	Activities []SnapshotActivity `json:"activities"`
	Documents  []SnapshotDocument `json:"documents,omitempty"`
}

// SnapshotActivity represents one activity aggregate in a snapshot.
type SnapshotActivity struct {
	ID                 string                     `json:"id"`
	Name               string                     `json:"name"`
	Description        string                     `json:"description,omitempty"`
	Schedule           domain.Schedule            `json:"schedule"`
	PaymentPeriod      *domain.Period             `json:"payment_period,omitempty"`
	HonorariumSettings []domain.HonorariumSetting `json:"honorarium_settings"`
	Assignments        []SnapshotAssignment       `json:"assignments"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
	LastProgressAt     *time.Time                 `json:"last_progress_at,omitempty"`
	LastProgressBy     string                     `json:"last_progress_by,omitempty"`
}

// SnapshotAssignment represents one worker assignment with its counters.
type SnapshotAssignment struct {
	ID             string                   `json:"id"`
	WorkerID       string                   `json:"worker_id"`
	WorkerName     string                   `json:"worker_name"`
	SupervisorName string                   `json:"supervisor_name,omitempty"`
	Phase          domain.Phase             `json:"phase"`
	Details        []domain.WorkloadDetail  `json:"details"`
	Stages         [domain.StageCount]int64 `json:"stages"`
}

// SnapshotDocument represents one document metadata row.
type SnapshotDocument struct {
	ID         string                `json:"id"`
	ActivityID string                `json:"activity_id"`
	Phase      domain.Phase          `json:"phase"`
	Name       string                `json:"name"`
	Mandatory  bool                  `json:"mandatory"`
	Approval   domain.ApprovalStatus `json:"approval"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	activities, err := s.repo.ListActivities(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Activities: make([]SnapshotActivity, 0, len(activities)),
		Documents:  make([]SnapshotDocument, 0),
	}
	if limit, ok, err := s.repo.GetHonorLimit(ctx); err != nil {
		return Snapshot{}, err
	} else if ok {
		snap.HonorLimit = &limit
	}
	for _, activity := range activities {
		snap.Activities = append(snap.Activities, snapshotActivityFromDomain(activity))
		docs, err := s.repo.ListDocuments(ctx, activity.ID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, doc := range docs {
			snap.Documents = append(snap.Documents, snapshotDocumentFromDomain(doc))
		}
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every activity and document in snap. A stored honor limit
// is only replaced by admin actors.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	if snap.HonorLimit != nil {
		if err := s.SetHonorLimit(ctx, *snap.HonorLimit); err != nil {
			return err
		}
	}
	for _, sa := range snap.Activities {
		activity, err := sa.toDomain()
		if err != nil {
			return fmt.Errorf("activity %q: %w", sa.ID, err)
		}
		if err := s.upsertActivity(ctx, activity); err != nil {
			return err
		}
	}
	for _, sd := range snap.Documents {
		doc, err := sd.toDomain()
		if err != nil {
			return fmt.Errorf("document %q: %w", sd.ID, err)
		}
		if err := s.repo.UpsertDocument(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}
	if s.HonorLimit != nil && *s.HonorLimit < 0 {
		return fmt.Errorf("honor_limit must be non-negative: %w", domain.ErrInvalidInput)
	}

	activityIDs := map[string]struct{}{}
	assignmentIDs := map[string]struct{}{}
	for i, a := range s.Activities {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("activities[%d].id is required", i)
		}
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("activities[%d].name is required", i)
		}
		if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
			return fmt.Errorf("activities[%d] timestamps are required", i)
		}
		if _, exists := activityIDs[a.ID]; exists {
			return fmt.Errorf("duplicate activity id: %q", a.ID)
		}
		activityIDs[a.ID] = struct{}{}
		for j, as := range a.Assignments {
			if strings.TrimSpace(as.ID) == "" {
				return fmt.Errorf("activities[%d].assignments[%d].id is required", i, j)
			}
			if _, exists := assignmentIDs[as.ID]; exists {
				return fmt.Errorf("duplicate assignment id: %q", as.ID)
			}
			assignmentIDs[as.ID] = struct{}{}
		}
	}

	docIDs := map[string]struct{}{}
	for i, d := range s.Documents {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("documents[%d].id is required", i)
		}
		if _, ok := activityIDs[d.ActivityID]; !ok {
			return fmt.Errorf("documents[%d] references unknown activity_id %q", i, d.ActivityID)
		}
		if _, exists := docIDs[d.ID]; exists {
			return fmt.Errorf("duplicate document id: %q", d.ID)
		}
		docIDs[d.ID] = struct{}{}
	}
	return nil
}

// upsertActivity handles upsert activity.
func (s *Service) upsertActivity(ctx context.Context, a domain.Activity) error {
	if _, err := s.repo.GetActivity(ctx, a.ID); err == nil {
		return s.repo.UpdateActivity(ctx, a)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateActivity(ctx, a)
}

func (s *Snapshot) sort() {
	sort.SliceStable(s.Activities, func(i, j int) bool {
		ai, aj := s.Activities[i], s.Activities[j]
		if !ai.CreatedAt.Equal(aj.CreatedAt) {
			return ai.CreatedAt.Before(aj.CreatedAt)
		}
		return ai.ID < aj.ID
	})
	sort.SliceStable(s.Documents, func(i, j int) bool {
		di, dj := s.Documents[i], s.Documents[j]
		if di.ActivityID != dj.ActivityID {
			return di.ActivityID < dj.ActivityID
		}
		return di.ID < dj.ID
	})
}

func snapshotActivityFromDomain(a domain.Activity) SnapshotActivity {
	out := SnapshotActivity{
		ID:                 a.ID,
		Name:               a.Name,
		Description:        a.Description,
		Schedule:           a.Schedule,
		PaymentPeriod:      a.PaymentPeriod,
		HonorariumSettings: append([]domain.HonorariumSetting(nil), a.HonorariumSettings...),
		Assignments:        make([]SnapshotAssignment, 0, len(a.Assignments)),
		CreatedAt:          a.CreatedAt.UTC(),
		UpdatedAt:          a.UpdatedAt.UTC(),
		LastProgressAt:     copyTimePtr(a.LastProgressAt),
		LastProgressBy:     a.LastProgressBy,
	}
	for _, as := range a.Assignments {
		out.Assignments = append(out.Assignments, SnapshotAssignment{
			ID:             as.ID,
			WorkerID:       as.WorkerID,
			WorkerName:     as.WorkerName,
			SupervisorName: as.SupervisorName,
			Phase:          as.Phase,
			Details:        append([]domain.WorkloadDetail(nil), as.Details...),
			Stages:         as.Counters.Values,
		})
	}
	return out
}

func snapshotDocumentFromDomain(d domain.DocumentRecord) SnapshotDocument {
	return SnapshotDocument{
		ID:         d.ID,
		ActivityID: d.ActivityID,
		Phase:      d.Phase,
		Name:       d.Name,
		Mandatory:  d.Mandatory,
		Approval:   d.Approval,
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

// toDomain rebuilds the aggregate through the domain constructors so imported data
// satisfies the same invariants as live edits. Stored honor amounts are recomputed.
func (a SnapshotActivity) toDomain() (domain.Activity, error) {
	activity, err := domain.NewActivity(domain.ActivityInput{
		ID:                 a.ID,
		Name:               a.Name,
		Description:        a.Description,
		Schedule:           a.Schedule,
		PaymentPeriod:      a.PaymentPeriod,
		HonorariumSettings: a.HonorariumSettings,
	}, a.CreatedAt)
	if err != nil {
		return domain.Activity{}, err
	}
	for _, sa := range a.Assignments {
		units := make(map[domain.TaskType]int64, len(sa.Details))
		for _, d := range sa.Details {
			units[d.TaskType] = d.UnitCount
		}
		as, err := activity.AddAssignment(domain.WorkerAssignmentInput{
			ID:             sa.ID,
			WorkerID:       sa.WorkerID,
			WorkerName:     sa.WorkerName,
			SupervisorName: sa.SupervisorName,
			Phase:          sa.Phase,
			Units:          units,
		}, a.UpdatedAt)
		if err != nil {
			return domain.Activity{}, fmt.Errorf("assignment %q: %w", sa.ID, err)
		}
		counters, err := domain.RestoreStageCounters(as.Phase, as.TotalWorkload(), [domain.StageCount - 1]int64(sa.Stages[1:]))
		if err != nil {
			return domain.Activity{}, fmt.Errorf("assignment %q: %w", sa.ID, err)
		}
		activity.Assignments[len(activity.Assignments)-1].Counters = counters
	}
	activity.CreatedAt = a.CreatedAt.UTC()
	activity.UpdatedAt = a.UpdatedAt.UTC()
	activity.LastProgressAt = copyTimePtr(a.LastProgressAt)
	activity.LastProgressBy = strings.TrimSpace(a.LastProgressBy)
	return activity, nil
}

func (d SnapshotDocument) toDomain() (domain.DocumentRecord, error) {
	return domain.NewDocumentRecord(domain.DocumentInput{
		ID:         d.ID,
		ActivityID: d.ActivityID,
		Phase:      d.Phase,
		Name:       d.Name,
		Mandatory:  d.Mandatory,
		Approval:   d.Approval,
	}, d.UpdatedAt)
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	out := in.UTC()
	return &out
}
