package schedule

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const scheduleColumns = `schedule_id, name, cron, action, media_url, enabled, last_run_at, last_status, created_at, updated_at`

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for cast schedules.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
	now    func() time.Time
}

// NewRepository creates a new schedule Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer(), now: time.Now}
}

// Create stores a new schedule. input must already be validated.
func (r *Repository) Create(input CreateScheduleInput) (*Schedule, error) {
	scheduleID := "sch_" + uuid.New().String()
	now := r.now().UTC().Format(time.RFC3339)

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	_, err := r.writer.Exec(`
		INSERT INTO cast_schedules (schedule_id, name, cron, action, media_url, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, scheduleID, input.Name, input.Cron, string(input.Action), input.MediaURL, boolToInt(enabled), now, now)
	if err != nil {
		return nil, err
	}

	return r.Get(scheduleID)
}

// Get returns a schedule by id, or nil, nil when it does not exist.
func (r *Repository) Get(scheduleID string) (*Schedule, error) {
	row := r.reader.QueryRow(`SELECT `+scheduleColumns+` FROM cast_schedules WHERE schedule_id = ?`, scheduleID)
	schedule, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return schedule, err
}

// List returns every schedule in creation order.
func (r *Repository) List() ([]Schedule, error) {
	return r.query(`SELECT ` + scheduleColumns + ` FROM cast_schedules ORDER BY created_at, rowid`)
}

// ListEnabled returns the schedules the runner should register.
func (r *Repository) ListEnabled() ([]Schedule, error) {
	return r.query(`SELECT ` + scheduleColumns + ` FROM cast_schedules WHERE enabled = 1 ORDER BY created_at, rowid`)
}

// Delete removes a schedule and reports whether it existed.
func (r *Repository) Delete(scheduleID string) (bool, error) {
	result, err := r.writer.Exec(`DELETE FROM cast_schedules WHERE schedule_id = ?`, scheduleID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecordRun stores the outcome of a firing.
func (r *Repository) RecordRun(scheduleID string, at time.Time, status RunStatus) error {
	stamp := at.UTC().Format(time.RFC3339)
	_, err := r.writer.Exec(`
		UPDATE cast_schedules SET last_run_at = ?, last_status = ?, updated_at = ?
		WHERE schedule_id = ?
	`, stamp, string(status), stamp, scheduleID)
	return err
}

func (r *Repository) query(query string, args ...any) ([]Schedule, error) {
	rows, err := r.reader.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := []Schedule{}
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (*Schedule, error) {
	var (
		schedule   Schedule
		action     string
		mediaURL   sql.NullString
		enabled    int
		lastRunAt  sql.NullString
		lastStatus sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&schedule.ScheduleID, &schedule.Name, &schedule.Cron, &action, &mediaURL, &enabled, &lastRunAt, &lastStatus, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	schedule.Action = Action(action)
	schedule.Enabled = enabled != 0
	if mediaURL.Valid {
		schedule.MediaURL = &mediaURL.String
	}
	if lastRunAt.Valid {
		if parsed, err := time.Parse(time.RFC3339, lastRunAt.String); err == nil {
			schedule.LastRunAt = &parsed
		}
	}
	if lastStatus.Valid {
		status := RunStatus(lastStatus.String)
		schedule.LastStatus = &status
	}
	schedule.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	schedule.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &schedule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
