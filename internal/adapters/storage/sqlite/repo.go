package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/fieldwork/internal/app"
	"github.com/hylla/fieldwork/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// taskTypeOrder sorts task types in display order.
const taskTypeOrder = `CASE task_type WHEN 'listing' THEN 0 WHEN 'enumeration' THEN 1 ELSE 2 END`

// honorLimitKey names the settings row holding the monthly ceiling.
const honorLimitKey = "honor_limit"

// Repository stores activities, documents, and settings in one sqlite file.
type Repository struct {
	db *sql.DB
}

// Open opens the database at path, creating parent directories and migrating the schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			schedule_json TEXT NOT NULL DEFAULT '{}',
			payment_month INTEGER,
			payment_year INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS honorarium_settings (
			activity_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			unit_label TEXT NOT NULL,
			unit_price INTEGER NOT NULL,
			PRIMARY KEY(activity_id, task_type),
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS worker_assignments (
			id TEXT PRIMARY KEY,
			activity_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			worker_id TEXT NOT NULL,
			worker_name TEXT NOT NULL,
			supervisor_name TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL,
			total INTEGER NOT NULL,
			stage_1 INTEGER NOT NULL DEFAULT 0,
			stage_2 INTEGER NOT NULL DEFAULT 0,
			stage_3 INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS workload_details (
			assignment_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			unit_count INTEGER NOT NULL,
			honor_amount INTEGER NOT NULL,
			PRIMARY KEY(assignment_id, task_type),
			FOREIGN KEY(assignment_id) REFERENCES worker_assignments(id) ON DELETE CASCADE
		);`,
		// progress_events.assignment_id has no foreign key so history outlives removed assignments.
		`CREATE TABLE IF NOT EXISTS progress_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			activity_id TEXT NOT NULL,
			assignment_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			old_value INTEGER NOT NULL,
			new_value INTEGER NOT NULL,
			actor_id TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			activity_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			name TEXT NOT NULL,
			mandatory INTEGER NOT NULL DEFAULT 1,
			approval TEXT NOT NULL DEFAULT 'pending',
			updated_at TEXT NOT NULL,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_assignments_activity_position ON worker_assignments(activity_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_worker_assignments_worker ON worker_assignments(worker_id);`,
		`CREATE INDEX IF NOT EXISTS idx_progress_events_activity_occurred_at ON progress_events(activity_id, occurred_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_activity_phase ON documents(activity_id, phase);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	activityAlterStatements := []string{
		`ALTER TABLE activities ADD COLUMN last_progress_at TEXT`,
		`ALTER TABLE activities ADD COLUMN last_progress_by TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range activityAlterStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil && !isDuplicateColumnErr(err) {
			return fmt.Errorf("migrate sqlite activities: %w", err)
		}
	}
	return nil
}

// CreateActivity inserts the activity with every setting, assignment, and counter.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	scheduleJSON, err := json.Marshal(a.Schedule)
	if err != nil {
		return fmt.Errorf("encode activity schedule: %w", err)
	}
	month, year := periodColumns(a.PaymentPeriod)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO activities(id, name, description, schedule_json, payment_month, payment_year, created_at, updated_at, last_progress_at, last_progress_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.Description, string(scheduleJSON), month, year, ts(a.CreatedAt), ts(a.UpdatedAt), nullableTS(a.LastProgressAt), a.LastProgressBy)
	if err != nil {
		return err
	}
	if err = insertChildren(ctx, tx, a); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// UpdateActivity rewrites the activity row and replaces its children in one transaction.
func (r *Repository) UpdateActivity(ctx context.Context, a domain.Activity) error {
	return r.updateActivity(ctx, a, nil)
}

// UpdateActivityWithEvent rewrites the activity and appends event in one transaction.
func (r *Repository) UpdateActivityWithEvent(ctx context.Context, a domain.Activity, event domain.ProgressEvent) error {
	return r.updateActivity(ctx, a, &event)
}

// updateActivity rewrites the aggregate and, when event is set, logs it before commit.
func (r *Repository) updateActivity(ctx context.Context, a domain.Activity, event *domain.ProgressEvent) error {
	scheduleJSON, err := json.Marshal(a.Schedule)
	if err != nil {
		return fmt.Errorf("encode activity schedule: %w", err)
	}
	month, year := periodColumns(a.PaymentPeriod)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE activities
		SET name = ?, description = ?, schedule_json = ?, payment_month = ?, payment_year = ?, updated_at = ?, last_progress_at = ?, last_progress_by = ?
		WHERE id = ?
	`, a.Name, a.Description, string(scheduleJSON), month, year, ts(a.UpdatedAt), nullableTS(a.LastProgressAt), a.LastProgressBy, a.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if err = deleteChildren(ctx, tx, a.ID); err != nil {
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
	err = tx.Commit()
	return err
}

// GetActivity returns the full activity aggregate.
func (r *Repository) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return loadActivity(ctx, r.db, id)
}

// ListActivities lists every activity in creation order.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	ids, err := queryIDs(ctx, r.db, `SELECT id FROM activities ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	return loadActivities(ctx, r.db, ids)
}

// FindActivitiesPayingWorkerInMonth narrows by worker in SQL and by resolved payment
// month in Go, since the month may fall back to schedule dates.
func (r *Repository) FindActivitiesPayingWorkerInMonth(ctx context.Context, workerID string, period domain.Period, excludeID string) ([]domain.Activity, error) {
	ids, err := queryIDs(ctx, r.db, `
		SELECT DISTINCT a.id
		FROM activities a
		JOIN worker_assignments wa ON wa.activity_id = a.id
		WHERE wa.worker_id = ? AND a.id <> ?
		ORDER BY a.id ASC
	`, strings.TrimSpace(workerID), strings.TrimSpace(excludeID))
	if err != nil {
		return nil, err
	}
	candidates, err := loadActivities(ctx, r.db, ids)
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

// insertProgressEvent writes one progress_events row.
func insertProgressEvent(ctx context.Context, execer execerContext, event domain.ProgressEvent) error {
	_, err := execer.ExecContext(ctx, `
		INSERT INTO progress_events(activity_id, assignment_id, stage, old_value, new_value, actor_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.ActivityID,
		event.AssignmentID,
		string(event.Stage),
		event.OldValue,
		event.NewValue,
		chooseActorID(event.ActorID),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert progress event: %w", err)
	}
	return nil
}

// ListProgressEvents lists recent stage edits for one activity, newest first.
func (r *Repository) ListProgressEvents(ctx context.Context, activityID string, limit int) ([]domain.ProgressEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, activity_id, assignment_id, stage, old_value, new_value, actor_id, occurred_at
		FROM progress_events
		WHERE activity_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, activityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProgressEvent, 0)
	for rows.Next() {
		var (
			event       domain.ProgressEvent
			stageRaw    string
			occurredRaw string
		)
		if err := rows.Scan(&event.ID, &event.ActivityID, &event.AssignmentID, &stageRaw, &event.OldValue, &event.NewValue, &event.ActorID, &occurredRaw); err != nil {
			return nil, err
		}
		event.Stage = domain.Stage(stageRaw)
		event.OccurredAt = parseTS(occurredRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// GetHonorLimit returns the stored ceiling, reporting false when none was saved.
func (r *Repository) GetHonorLimit(ctx context.Context) (int64, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, honorLimitKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, honorLimitKey, strconv.FormatInt(limit, 10))
	return err
}

// GetMandatoryDocuments lists mandatory documents of one phase.
func (r *Repository) GetMandatoryDocuments(ctx context.Context, activityID string, phase domain.Phase) ([]domain.DocumentRecord, error) {
	return queryDocuments(ctx, r.db, `
		SELECT id, activity_id, phase, name, mandatory, approval, updated_at
		FROM documents
		WHERE activity_id = ? AND phase = ? AND mandatory = 1
		ORDER BY name ASC, id ASC
	`, activityID, string(phase))
}

// ListDocuments lists every document of one activity.
func (r *Repository) ListDocuments(ctx context.Context, activityID string) ([]domain.DocumentRecord, error) {
	return queryDocuments(ctx, r.db, `
		SELECT id, activity_id, phase, name, mandatory, approval, updated_at
		FROM documents
		WHERE activity_id = ?
		ORDER BY phase ASC, name ASC, id ASC
	`, activityID)
}

// UpsertDocument inserts or replaces one document record.
func (r *Repository) UpsertDocument(ctx context.Context, doc domain.DocumentRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents(id, activity_id, phase, name, mandatory, approval, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			activity_id = excluded.activity_id,
			phase = excluded.phase,
			name = excluded.name,
			mandatory = excluded.mandatory,
			approval = excluded.approval,
			updated_at = excluded.updated_at
	`, doc.ID, doc.ActivityID, string(doc.Phase), doc.Name, boolInt(doc.Mandatory), string(doc.Approval), ts(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// queryer represents a read-only DB contract used by DB and Tx implementations.
type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertChildren writes settings, assignments, workload details, and counters.
func insertChildren(ctx context.Context, execer execerContext, a domain.Activity) error {
	for _, s := range a.HonorariumSettings {
		if _, err := execer.ExecContext(ctx, `
			INSERT INTO honorarium_settings(activity_id, task_type, unit_label, unit_price)
			VALUES (?, ?, ?, ?)
		`, a.ID, string(s.TaskType), s.UnitLabel, s.UnitPrice); err != nil {
			return fmt.Errorf("insert honorarium setting: %w", err)
		}
	}
	for pos, as := range a.Assignments {
		c := as.Counters
		if _, err := execer.ExecContext(ctx, `
			INSERT INTO worker_assignments(id, activity_id, position, worker_id, worker_name, supervisor_name, phase, total, stage_1, stage_2, stage_3)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, as.ID, a.ID, pos, as.WorkerID, as.WorkerName, as.SupervisorName, string(as.Phase), c.Total, c.Values[1], c.Values[2], c.Values[3]); err != nil {
			return fmt.Errorf("insert worker assignment: %w", err)
		}
		for _, d := range as.Details {
			if _, err := execer.ExecContext(ctx, `
				INSERT INTO workload_details(assignment_id, task_type, unit_count, honor_amount)
				VALUES (?, ?, ?, ?)
			`, as.ID, string(d.TaskType), d.UnitCount, d.HonorAmount); err != nil {
				return fmt.Errorf("insert workload detail: %w", err)
			}
		}
	}
	return nil
}

// deleteChildren removes every child row of one activity.
func deleteChildren(ctx context.Context, execer execerContext, activityID string) error {
	stmts := []string{
		`DELETE FROM workload_details WHERE assignment_id IN (SELECT id FROM worker_assignments WHERE activity_id = ?)`,
		`DELETE FROM worker_assignments WHERE activity_id = ?`,
		`DELETE FROM honorarium_settings WHERE activity_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := execer.ExecContext(ctx, stmt, activityID); err != nil {
			return fmt.Errorf("replace activity children: %w", err)
		}
	}
	return nil
}

// loadActivities loads each id in order.
func loadActivities(ctx context.Context, q queryer, ids []string) ([]domain.Activity, error) {
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

// loadActivity reads one activity row plus its children and checks every counter.
func loadActivity(ctx context.Context, q queryer, id string) (domain.Activity, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, description, schedule_json, payment_month, payment_year, created_at, updated_at, last_progress_at, last_progress_by
		FROM activities
		WHERE id = ?
	`, id)
	a, err := scanActivity(row)
	if err != nil {
		return domain.Activity{}, err
	}

	settingRows, err := q.QueryContext(ctx, `
		SELECT task_type, unit_label, unit_price
		FROM honorarium_settings
		WHERE activity_id = ?
		ORDER BY `+taskTypeOrder+`
	`, a.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	for settingRows.Next() {
		var (
			s       domain.HonorariumSetting
			typeRaw string
		)
		if err := settingRows.Scan(&typeRaw, &s.UnitLabel, &s.UnitPrice); err != nil {
			_ = settingRows.Close()
			return domain.Activity{}, err
		}
		s.TaskType = domain.TaskType(typeRaw)
		a.HonorariumSettings = append(a.HonorariumSettings, s)
	}
	if err := closeRows(settingRows); err != nil {
		return domain.Activity{}, err
	}

	assignmentRows, err := q.QueryContext(ctx, `
		SELECT id, worker_id, worker_name, supervisor_name, phase, total, stage_1, stage_2, stage_3
		FROM worker_assignments
		WHERE activity_id = ?
		ORDER BY position ASC
	`, a.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	for assignmentRows.Next() {
		var (
			as         domain.WorkerAssignment
			phaseRaw   string
			total      int64
			progressed [domain.StageCount - 1]int64
		)
		if err := assignmentRows.Scan(&as.ID, &as.WorkerID, &as.WorkerName, &as.SupervisorName, &phaseRaw, &total, &progressed[0], &progressed[1], &progressed[2]); err != nil {
			_ = assignmentRows.Close()
			return domain.Activity{}, err
		}
		as.ActivityID = a.ID
		as.Phase = domain.Phase(phaseRaw)
		as.Counters, err = domain.RestoreStageCounters(as.Phase, total, progressed)
		if err != nil {
			_ = assignmentRows.Close()
			return domain.Activity{}, fmt.Errorf("decode counters of assignment %q: %w", as.ID, err)
		}
		a.Assignments = append(a.Assignments, as)
	}
	if err := closeRows(assignmentRows); err != nil {
		return domain.Activity{}, err
	}

	for i := range a.Assignments {
		details, err := loadDetails(ctx, q, a.Assignments[i].ID)
		if err != nil {
			return domain.Activity{}, err
		}
		a.Assignments[i].Details = details
	}
	return a, nil
}

// loadDetails reads the workload details of one assignment.
func loadDetails(ctx context.Context, q queryer, assignmentID string) ([]domain.WorkloadDetail, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT task_type, unit_count, honor_amount
		FROM workload_details
		WHERE assignment_id = ?
		ORDER BY `+taskTypeOrder+`
	`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.WorkloadDetail, 0)
	for rows.Next() {
		var (
			d       domain.WorkloadDetail
			typeRaw string
		)
		if err := rows.Scan(&typeRaw, &d.UnitCount, &d.HonorAmount); err != nil {
			return nil, err
		}
		d.TaskType = domain.TaskType(typeRaw)
		out = append(out, d)
	}
	return out, rows.Err()
}

// queryIDs runs a single-column id query.
func queryIDs(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
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

// queryDocuments runs a document query.
func queryDocuments(ctx context.Context, q queryer, query string, args ...any) ([]domain.DocumentRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.DocumentRecord, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanActivity handles scan activity.
func scanActivity(s scanner) (domain.Activity, error) {
	var (
		a           domain.Activity
		scheduleRaw string
		month       sql.NullInt64
		year        sql.NullInt64
		createdRaw  string
		updatedRaw  string
		progressRaw sql.NullString
	)
	if err := s.Scan(&a.ID, &a.Name, &a.Description, &scheduleRaw, &month, &year, &createdRaw, &updatedRaw, &progressRaw, &a.LastProgressBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Activity{}, app.ErrNotFound
		}
		return domain.Activity{}, err
	}
	if strings.TrimSpace(scheduleRaw) == "" {
		scheduleRaw = "{}"
	}
	if err := json.Unmarshal([]byte(scheduleRaw), &a.Schedule); err != nil {
		return domain.Activity{}, fmt.Errorf("decode activity schedule_json: %w", err)
	}
	if month.Valid && year.Valid {
		p, err := domain.NewPeriod(int(month.Int64), int(year.Int64))
		if err != nil {
			return domain.Activity{}, fmt.Errorf("decode activity payment period: %w", err)
		}
		a.PaymentPeriod = &p
	}
	a.CreatedAt = parseTS(createdRaw)
	a.UpdatedAt = parseTS(updatedRaw)
	a.LastProgressAt = parseNullTS(progressRaw)
	return a, nil
}

// scanDocument handles scan document.
func scanDocument(s scanner) (domain.DocumentRecord, error) {
	var (
		doc         domain.DocumentRecord
		phaseRaw    string
		mandatory   int64
		approvalRaw string
		updatedRaw  string
	)
	if err := s.Scan(&doc.ID, &doc.ActivityID, &phaseRaw, &doc.Name, &mandatory, &approvalRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentRecord{}, app.ErrNotFound
		}
		return domain.DocumentRecord{}, err
	}
	doc.Phase = domain.Phase(phaseRaw)
	doc.Mandatory = mandatory != 0
	approval, err := domain.ParseApprovalStatus(approvalRaw)
	if err != nil {
		return domain.DocumentRecord{}, fmt.Errorf("decode document approval %q: %w", approvalRaw, err)
	}
	doc.Approval = approval
	doc.UpdatedAt = parseTS(updatedRaw)
	return doc, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

func periodColumns(p *domain.Period) (any, any) {
	if p == nil || p.IsZero() {
		return nil, nil
	}
	return int(p.Month), p.Year
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// chooseActorID falls back to the default actor for blank ids.
func chooseActorID(actorID string) string {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.DefaultActorID
	}
	return actorID
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

// isDuplicateColumnErr reports whether the expected condition is satisfied.
func isDuplicateColumnErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
