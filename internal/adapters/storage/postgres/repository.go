package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const honorLimitKey = "honor_limit"

const taskTypeOrder = `CASE task_type WHEN 'listing' THEN 0 WHEN 'enumeration' THEN 1 ELSE 2 END`

// Repository provides Postgres-backed persistence for activities, documents, and settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open connects to url, applies the schema, and returns a ready repository.
func Open(ctx context.Context, url string) (*Repository, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("postgres url is required")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	repo := NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate applies the idempotent schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// querier is the statement surface shared by the pool and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateActivity persists the aggregate inside a single transaction.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	schedule, err := json.Marshal(a.Schedule)
	if err != nil {
		return fmt.Errorf("encode activity schedule: %w", err)
	}
	month, year := periodColumns(a.PaymentPeriod)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertActivity = `INSERT INTO activities (id, name, description, schedule, payment_month, payment_year, created_at, updated_at, last_progress_at, last_progress_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = tx.Exec(ctx, insertActivity,
		a.ID,
		a.Name,
		a.Description,
		schedule,
		month,
		year,
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
		utcPtr(a.LastProgressAt),
		a.LastProgressBy,
	)
	if err != nil {
		return err
	}
	if err = insertChildren(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateActivity rewrites the activity row and replaces its children.
func (r *Repository) UpdateActivity(ctx context.Context, a domain.Activity) error {
	return r.updateActivity(ctx, a, nil)
}

// UpdateActivityWithEvent rewrites the activity and appends event in one transaction.
func (r *Repository) UpdateActivityWithEvent(ctx context.Context, a domain.Activity, event domain.ProgressEvent) error {
	return r.updateActivity(ctx, a, &event)
}

func (r *Repository) updateActivity(ctx context.Context, a domain.Activity, event *domain.ProgressEvent) error {
	schedule, err := json.Marshal(a.Schedule)
	if err != nil {
		return fmt.Errorf("encode activity schedule: %w", err)
	}
	month, year := periodColumns(a.PaymentPeriod)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const updateActivity = `UPDATE activities
        SET name=$2, description=$3, schedule=$4, payment_month=$5, payment_year=$6, updated_at=$7, last_progress_at=$8, last_progress_by=$9
        WHERE id=$1`
	tag, err := tx.Exec(ctx, updateActivity,
		a.ID,
		a.Name,
		a.Description,
		schedule,
		month,
		year,
		a.UpdatedAt.UTC(),
		utcPtr(a.LastProgressAt),
		a.LastProgressBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = app.ErrNotFound
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM worker_assignments WHERE activity_id=$1`, a.ID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM honorarium_settings WHERE activity_id=$1`, a.ID); err != nil {
		return err
	}
	if err = insertChildren(ctx, tx, a); err != nil {
		return err
	}
	if event != nil {
		if err = insertProgressEvent(ctx, tx, *event); err != nil {
			return err
		}
	}
	err = tx.Commit(ctx)
	return err
}

// GetActivity retrieves one aggregate by ID.
func (r *Repository) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return loadActivity(ctx, r.pool, id)
}

// ListActivities returns every aggregate in creation order.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	ids, err := queryIDs(ctx, r.pool, `SELECT id FROM activities ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	return loadActivities(ctx, r.pool, ids)
}

// FindActivitiesPayingWorkerInMonth narrows by worker in SQL and by resolved payment month in Go.
func (r *Repository) FindActivitiesPayingWorkerInMonth(ctx context.Context, workerID string, period domain.Period, excludeID string) ([]domain.Activity, error) {
	const query = `SELECT DISTINCT a.id
        FROM activities a
        JOIN worker_assignments wa ON wa.activity_id = a.id
        WHERE wa.worker_id=$1 AND a.id <> $2
        ORDER BY a.id ASC`
	ids, err := queryIDs(ctx, r.pool, query, strings.TrimSpace(workerID), strings.TrimSpace(excludeID))
	if err != nil {
		return nil, err
	}
	candidates, err := loadActivities(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Activity, 0, len(candidates))
	for _, a := range candidates {
		resolved, err := domain.ResolvePaymentPeriod(a)
		if err != nil || resolved != period {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func insertProgressEvent(ctx context.Context, q querier, event domain.ProgressEvent) error {
	const stmt = `INSERT INTO progress_events (activity_id, assignment_id, stage, old_value, new_value, actor_id, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	actor := strings.TrimSpace(event.ActorID)
	if actor == "" {
		actor = domain.DefaultActorID
	}
	if _, err := q.Exec(ctx, stmt, event.ActivityID, event.AssignmentID, string(event.Stage), event.OldValue, event.NewValue, actor, occurred.UTC()); err != nil {
		return fmt.Errorf("insert progress event: %w", err)
	}
	return nil
}

// ListProgressEvents returns the newest stage edits of one activity.
func (r *Repository) ListProgressEvents(ctx context.Context, activityID string, limit int) ([]domain.ProgressEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, activity_id, assignment_id, stage, old_value, new_value, actor_id, occurred_at
        FROM progress_events WHERE activity_id=$1
        ORDER BY occurred_at DESC, id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, activityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ProgressEvent, 0, limit)
	for rows.Next() {
		var (
			event domain.ProgressEvent
			stage string
		)
		if err := rows.Scan(&event.ID, &event.ActivityID, &event.AssignmentID, &stage, &event.OldValue, &event.NewValue, &event.ActorID, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.Stage = domain.Stage(stage)
		event.OccurredAt = event.OccurredAt.UTC()
		results = append(results, event)
	}
	return results, rows.Err()
}

// GetHonorLimit returns the stored ceiling, reporting false when none was saved.
func (r *Repository) GetHonorLimit(ctx context.Context) (int64, bool, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, honorLimitKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	limit, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode settings.%s: %w", honorLimitKey, err)
	}
	return limit, true, nil
}

// SetHonorLimit stores the monthly ceiling.
func (r *Repository) SetHonorLimit(ctx context.Context, limit int64) error {
	const stmt = `INSERT INTO settings (key, value) VALUES ($1,$2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	_, err := r.pool.Exec(ctx, stmt, honorLimitKey, strconv.FormatInt(limit, 10))
	return err
}

// GetMandatoryDocuments lists mandatory documents of one phase.
func (r *Repository) GetMandatoryDocuments(ctx context.Context, activityID string, phase domain.Phase) ([]domain.DocumentRecord, error) {
	const query = `SELECT id, activity_id, phase, name, mandatory, approval, updated_at
        FROM documents WHERE activity_id=$1 AND phase=$2 AND mandatory
        ORDER BY name ASC, id ASC`
	return queryDocuments(ctx, r.pool, query, activityID, string(phase))
}

// ListDocuments lists every document of one activity.
func (r *Repository) ListDocuments(ctx context.Context, activityID string) ([]domain.DocumentRecord, error) {
	const query = `SELECT id, activity_id, phase, name, mandatory, approval, updated_at
        FROM documents WHERE activity_id=$1
        ORDER BY phase ASC, name ASC, id ASC`
	return queryDocuments(ctx, r.pool, query, activityID)
}

// UpsertDocument inserts or replaces one document record.
func (r *Repository) UpsertDocument(ctx context.Context, doc domain.DocumentRecord) error {
	const stmt = `INSERT INTO documents (id, activity_id, phase, name, mandatory, approval, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO UPDATE SET
            activity_id = EXCLUDED.activity_id,
            phase = EXCLUDED.phase,
            name = EXCLUDED.name,
            mandatory = EXCLUDED.mandatory,
            approval = EXCLUDED.approval,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.pool.Exec(ctx, stmt, doc.ID, doc.ActivityID, string(doc.Phase), doc.Name, doc.Mandatory, string(doc.Approval), doc.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func insertChildren(ctx context.Context, q querier, a domain.Activity) error {
	const insertSetting = `INSERT INTO honorarium_settings (activity_id, task_type, unit_label, unit_price) VALUES ($1,$2,$3,$4)`
	for _, s := range a.HonorariumSettings {
		if _, err := q.Exec(ctx, insertSetting, a.ID, string(s.TaskType), s.UnitLabel, s.UnitPrice); err != nil {
			return fmt.Errorf("insert honorarium setting: %w", err)
		}
	}
	const insertAssignment = `INSERT INTO worker_assignments (id, activity_id, position, worker_id, worker_name, supervisor_name, phase, total, stage_1, stage_2, stage_3)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	const insertDetail = `INSERT INTO workload_details (assignment_id, task_type, unit_count, honor_amount) VALUES ($1,$2,$3,$4)`
	for pos, as := range a.Assignments {
		c := as.Counters
		if _, err := q.Exec(ctx, insertAssignment, as.ID, a.ID, pos, as.WorkerID, as.WorkerName, as.SupervisorName, string(as.Phase), c.Total, c.Values[1], c.Values[2], c.Values[3]); err != nil {
			return fmt.Errorf("insert worker assignment: %w", err)
		}
		for _, d := range as.Details {
			if _, err := q.Exec(ctx, insertDetail, as.ID, string(d.TaskType), d.UnitCount, d.HonorAmount); err != nil {
				return fmt.Errorf("insert workload detail: %w", err)
			}
		}
	}
	return nil
}

func loadActivities(ctx context.Context, q querier, ids []string) ([]domain.Activity, error) {
	out := make([]domain.Activity, 0, len(ids))
	for _, id := range ids {
		a, err := loadActivity(ctx, q, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func loadActivity(ctx context.Context, q querier, id string) (domain.Activity, error) {
	const query = `SELECT id, name, description, schedule, payment_month, payment_year, created_at, updated_at, last_progress_at, last_progress_by
        FROM activities WHERE id=$1`
	var (
		a        domain.Activity
		schedule []byte
		month    *int32
		year     *int32
	)
	err := q.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Description, &schedule, &month, &year, &a.CreatedAt, &a.UpdatedAt, &a.LastProgressAt, &a.LastProgressBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Activity{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Activity{}, err
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &a.Schedule); err != nil {
			return domain.Activity{}, fmt.Errorf("decode activity schedule: %w", err)
		}
	}
	if month != nil && year != nil {
		p, err := domain.NewPeriod(int(*month), int(*year))
		if err != nil {
			return domain.Activity{}, fmt.Errorf("decode activity payment period: %w", err)
		}
		a.PaymentPeriod = &p
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.LastProgressAt = utcPtr(a.LastProgressAt)

	settingRows, err := q.Query(ctx, `SELECT task_type, unit_label, unit_price FROM honorarium_settings WHERE activity_id=$1 ORDER BY `+taskTypeOrder, a.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	for settingRows.Next() {
		var (
			s        domain.HonorariumSetting
			taskType string
		)
		if err := settingRows.Scan(&taskType, &s.UnitLabel, &s.UnitPrice); err != nil {
			settingRows.Close()
			return domain.Activity{}, err
		}
		s.TaskType = domain.TaskType(taskType)
		a.HonorariumSettings = append(a.HonorariumSettings, s)
	}
	settingRows.Close()
	if err := settingRows.Err(); err != nil {
		return domain.Activity{}, err
	}

	const assignmentQuery = `SELECT id, worker_id, worker_name, supervisor_name, phase, total, stage_1, stage_2, stage_3
        FROM worker_assignments WHERE activity_id=$1 ORDER BY position ASC`
	assignmentRows, err := q.Query(ctx, assignmentQuery, a.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	type storedAssignment struct {
		as         domain.WorkerAssignment
		total      int64
		progressed [domain.StageCount - 1]int64
	}
	stored := make([]storedAssignment, 0)
	for assignmentRows.Next() {
		var (
			row   storedAssignment
			phase string
		)
		if err := assignmentRows.Scan(&row.as.ID, &row.as.WorkerID, &row.as.WorkerName, &row.as.SupervisorName, &phase, &row.total, &row.progressed[0], &row.progressed[1], &row.progressed[2]); err != nil {
			assignmentRows.Close()
			return domain.Activity{}, err
		}
		row.as.ActivityID = a.ID
		row.as.Phase = domain.Phase(phase)
		stored = append(stored, row)
	}
	assignmentRows.Close()
	if err := assignmentRows.Err(); err != nil {
		return domain.Activity{}, err
	}

	for _, row := range stored {
		as := row.as
		as.Counters, err = domain.RestoreStageCounters(as.Phase, row.total, row.progressed)
		if err != nil {
			return domain.Activity{}, fmt.Errorf("decode counters of assignment %q: %w", as.ID, err)
		}
		as.Details, err = loadDetails(ctx, q, as.ID)
		if err != nil {
			return domain.Activity{}, err
		}
		a.Assignments = append(a.Assignments, as)
	}
	return a, nil
}

func loadDetails(ctx context.Context, q querier, assignmentID string) ([]domain.WorkloadDetail, error) {
	rows, err := q.Query(ctx, `SELECT task_type, unit_count, honor_amount FROM workload_details WHERE assignment_id=$1 ORDER BY `+taskTypeOrder, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.WorkloadDetail, 0)
	for rows.Next() {
		var (
			d        domain.WorkloadDetail
			taskType string
		)
		if err := rows.Scan(&taskType, &d.UnitCount, &d.HonorAmount); err != nil {
			return nil, err
		}
		d.TaskType = domain.TaskType(taskType)
		out = append(out, d)
	}
	return out, rows.Err()
}

func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func queryDocuments(ctx context.Context, q querier, query string, args ...any) ([]domain.DocumentRecord, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.DocumentRecord, 0)
	for rows.Next() {
		var (
			doc      domain.DocumentRecord
			phase    string
			approval string
		)
		if err := rows.Scan(&doc.ID, &doc.ActivityID, &phase, &doc.Name, &doc.Mandatory, &approval, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Phase = domain.Phase(phase)
		doc.Approval, err = domain.ParseApprovalStatus(approval)
		if err != nil {
			return nil, fmt.Errorf("decode document approval %q: %w", approval, err)
		}
		doc.UpdatedAt = doc.UpdatedAt.UTC()
		out = append(out, doc)
	}
	return out, rows.Err()
}

func periodColumns(p *domain.Period) (*int32, *int32) {
	if p == nil || p.IsZero() {
		return nil, nil
	}
	month, year := int32(p.Month), int32(p.Year)
	return &month, &year
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
