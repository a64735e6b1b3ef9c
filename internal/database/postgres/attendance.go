package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/face-attend/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance and audit
// storage. The UNIQUE (session_id, student_id) constraint surfaces as
// database.ErrDuplicateAttendance so callers can recover from races.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `id, session_id, student_id, check_in_time, last_seen_time, status, confidence, method, notes, created_at`

func scanAttendance(row interface{ Scan(...any) error }) (*database.AttendanceRecord, error) {
	var r database.AttendanceRecord
	var checkIn, lastSeen sql.NullTime
	err := row.Scan(&r.ID, &r.SessionID, &r.StudentID, &checkIn, &lastSeen,
		&r.Status, &r.Confidence, &r.Method, &r.Notes, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendance record: %w", err)
	}
	if checkIn.Valid {
		t := checkIn.Time
		r.CheckInTime = &t
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		r.LastSeenTime = &t
	}
	return &r, nil
}

// CreateAttendance inserts a new record. Returns ErrDuplicateAttendance when
// the (session, student) pair already has one.
func (r *AttendanceRepository) CreateAttendance(ctx context.Context, rec *database.AttendanceRecord) (int64, error) {
	query := `
		INSERT INTO attendance_records (session_id, student_id, check_in_time, last_seen_time, status, confidence, method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		rec.SessionID, rec.StudentID, nullTime(rec.CheckInTime), nullTime(rec.LastSeenTime),
		rec.Status, rec.Confidence, rec.Method, rec.Notes,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		// 23505 = unique_violation
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, database.ErrDuplicateAttendance
		}
		return 0, fmt.Errorf("insert attendance record: %w", err)
	}
	return rec.ID, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// GetAttendance retrieves the record for a (session, student) pair
func (r *AttendanceRepository) GetAttendance(ctx context.Context, sessionID, studentID int64) (*database.AttendanceRecord, error) {
	return scanAttendance(r.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records WHERE session_id = $1 AND student_id = $2`,
		sessionID, studentID))
}

// UpdateSighting bumps last_seen_time and raises confidence if the new value
// is higher. Status and check_in_time are left untouched.
func (r *AttendanceRepository) UpdateSighting(ctx context.Context, sessionID, studentID int64, seenAt time.Time, confidence float64) error {
	query := `
		UPDATE attendance_records
		SET last_seen_time = $3, confidence = GREATEST(confidence, $4)
		WHERE session_id = $1 AND student_id = $2
	`
	result, err := r.pool.Exec(ctx, query, sessionID, studentID, seenAt, confidence)
	if err != nil {
		return fmt.Errorf("update sighting: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ListBySession returns all attendance records for a session
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID int64) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records WHERE session_id = $1 ORDER BY check_in_time NULLS LAST`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// Append writes an audit event. Events are never updated or deleted.
func (r *AttendanceRepository) Append(ctx context.Context, e *database.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, session_id, student_id, action, suspicious, similarity, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.pool.Exec(ctx, query,
		e.ID, e.SessionID, e.StudentID, e.Action, e.Suspicious, e.Similarity, e.OccurredAt); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditBySession returns a session's audit trail in chronological order
func (r *AttendanceRepository) ListAuditBySession(ctx context.Context, sessionID int64) ([]database.AuditEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, student_id, action, suspicious, similarity, occurred_at
		 FROM audit_events WHERE session_id = $1 ORDER BY occurred_at`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []database.AuditEvent
	for rows.Next() {
		var e database.AuditEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.StudentID, &e.Action, &e.Suspicious, &e.Similarity, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// Verify interface compliance
var _ database.AttendanceStore = (*AttendanceRepository)(nil)
var _ database.AuditLog = (*AttendanceRepository)(nil)
