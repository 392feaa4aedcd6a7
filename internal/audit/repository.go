package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timestampLayout is fixed width so that stored timestamps sort as strings.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

const eventColumns = `event_id, timestamp, type, level, request_id, schedule_id, track_id, receiver, message, payload`

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for audit events.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
	now    func() time.Time
}

// NewRepository creates a new audit Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer(), now: time.Now}
}

// InsertEvent writes a new audit event. The level defaults to INFO.
func (r *Repository) InsertEvent(input WriteEventInput) (*AuditEvent, error) {
	eventID := uuid.New().String()
	timestamp := formatTimestamp(r.now())

	level := EventLevelInfo
	if input.Level != nil {
		level = *input.Level
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO audit_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, timestamp, input.Type, string(level), input.RequestID, input.ScheduleID, input.TrackID, input.Receiver, input.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}

	return r.GetEvent(eventID)
}

// GetEvent retrieves a single event by ID.
// Returns nil, nil if not found.
func (r *Repository) GetEvent(eventID string) (*AuditEvent, error) {
	row := r.reader.QueryRow(`SELECT `+eventColumns+` FROM audit_events WHERE event_id = ?`, eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// QueryEvents retrieves events matching filters, newest first, along with
// the total number of matches.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM audit_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events ` + whereClause + `
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?`
	rows, err := r.reader.Query(query, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// PruneOldEvents deletes events older than retentionDays and returns the
// number of rows deleted.
func (r *Repository) PruneOldEvents(retentionDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -retentionDays)

	result, err := r.writer.Exec(`DELETE FROM audit_events WHERE timestamp < ?`, formatTimestamp(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildWhereClause(filters EventQueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filters.Type)
	}
	if filters.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filters.Level))
	}
	if filters.RequestID != nil {
		conditions = append(conditions, "request_id = ?")
		args = append(args, *filters.RequestID)
	}
	if filters.ScheduleID != nil {
		conditions = append(conditions, "schedule_id = ?")
		args = append(args, *filters.ScheduleID)
	}
	if filters.Receiver != nil {
		conditions = append(conditions, "receiver = ?")
		args = append(args, *filters.Receiver)
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTimestamp(*filters.StartDate))
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, formatTimestamp(*filters.EndDate))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*AuditEvent, error) {
	var event AuditEvent
	var timestamp, level, payloadJSON string
	var requestID, scheduleID, receiver sql.NullString
	var trackID sql.NullInt64

	err := row.Scan(
		&event.EventID,
		&timestamp,
		&event.Type,
		&level,
		&requestID,
		&scheduleID,
		&trackID,
		&receiver,
		&event.Message,
		&payloadJSON,
	)
	if err != nil {
		return nil, err
	}

	event.Timestamp, err = time.Parse(timestampLayout, timestamp)
	if err != nil {
		event.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
	}
	event.Level = EventLevel(level)

	if requestID.Valid {
		event.RequestID = &requestID.String
	}
	if scheduleID.Valid {
		event.ScheduleID = &scheduleID.String
	}
	if trackID.Valid {
		id := int(trackID.Int64)
		event.TrackID = &id
	}
	if receiver.Valid {
		event.Receiver = &receiver.String
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}
	return &event, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
