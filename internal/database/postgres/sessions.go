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

// SessionRepository provides PostgreSQL-backed session storage. Lifecycle
// transitions are compare-and-set UPDATEs so concurrent sweeps and manual
// requests cannot double-apply a transition.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, course_id, time_slot_id, starts_at, ends_at, late_threshold_minutes, status, auto_created, finalized_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*database.Session, error) {
	var s database.Session
	var slotID sql.NullInt64
	var finalized sql.NullTime
	err := row.Scan(&s.ID, &s.CourseID, &slotID, &s.StartsAt, &s.EndsAt, &s.LateThresholdMinutes,
		&s.Status, &s.AutoCreated, &finalized, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if slotID.Valid {
		s.TimeSlotID = &slotID.Int64
	}
	if finalized.Valid {
		t := finalized.Time
		s.FinalizedAt = &t
	}
	return &s, nil
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...any) ([]database.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession inserts a new session and returns its ID
func (r *SessionRepository) CreateSession(ctx context.Context, s *database.Session) (int64, error) {
	query := `
		INSERT INTO sessions (course_id, time_slot_id, starts_at, ends_at, late_threshold_minutes, status, auto_created)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	var slotID sql.NullInt64
	if s.TimeSlotID != nil {
		slotID = sql.NullInt64{Int64: *s.TimeSlotID, Valid: true}
	}
	err := r.pool.QueryRow(ctx, query,
		s.CourseID, slotID, s.StartsAt, s.EndsAt, s.LateThresholdMinutes, s.Status, s.AutoCreated,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return s.ID, nil
}

// GetSession retrieves a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, id int64) (*database.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// ListSessions returns sessions matching the filter, newest first
func (r *SessionRepository) ListSessions(ctx context.Context, f database.SessionFilter) ([]database.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	var where []string
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Date != nil {
		args = append(args, f.Date.Format("2006-01-02"))
		where = append(where, fmt.Sprintf("starts_at::date = $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += ` ORDER BY starts_at DESC`
	return r.querySessions(ctx, query, args...)
}

// ActiveSession returns the single ACTIVE session, or ErrNotFound
func (r *SessionRepository) ActiveSession(ctx context.Context) (*database.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = $1 ORDER BY starts_at LIMIT 1`,
		database.SessionActive))
}

// FindOverlapping returns non-terminal sessions intersecting [startsAt, endsAt)
func (r *SessionRepository) FindOverlapping(ctx context.Context, startsAt, endsAt time.Time) ([]database.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status IN ($1, $2)
		  AND starts_at < $4
		  AND ends_at > $3
	`
	return r.querySessions(ctx, query, database.SessionScheduled, database.SessionActive, startsAt, endsAt)
}

// SessionExistsForSlot reports whether a session auto-created from the slot
// already covers the given start instant
func (r *SessionRepository) SessionExistsForSlot(ctx context.Context, slotID int64, startsAt time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE time_slot_id = $1 AND starts_at = $2)`,
		slotID, startsAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot session exists: %w", err)
	}
	return exists, nil
}

// TransitionStatus performs a compare-and-set status change. Returns false
// when the session was not in any of the from states.
func (r *SessionRepository) TransitionStatus(ctx context.Context, id int64, from []database.SessionStatus, to database.SessionStatus, endsAt *time.Time) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	var result sql.Result
	var err error
	if endsAt != nil {
		result, err = r.pool.Exec(ctx,
			`UPDATE sessions SET status = $1, ends_at = $2, updated_at = NOW() WHERE id = $3 AND status = ANY($4)`,
			to, *endsAt, id, pq.Array(fromStrs))
	} else {
		result, err = r.pool.Exec(ctx,
			`UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`,
			to, id, pq.Array(fromStrs))
	}
	if err != nil {
		return false, fmt.Errorf("transition session status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DueForActivation returns SCHEDULED sessions whose start has passed
func (r *SessionRepository) DueForActivation(ctx context.Context, now time.Time) ([]database.Session, error) {
	return r.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = $1 AND starts_at <= $2 ORDER BY starts_at`,
		database.SessionScheduled, now)
}

// DueForCompletion returns ACTIVE sessions whose end has passed
func (r *SessionRepository) DueForCompletion(ctx context.Context, now time.Time) ([]database.Session, error) {
	return r.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = $1 AND ends_at <= $2 ORDER BY ends_at`,
		database.SessionActive, now)
}

// DueForFinalization returns unfinalized, non-cancelled sessions past their
// absentee cutoff (starts_at + late threshold + buffer)
func (r *SessionRepository) DueForFinalization(ctx context.Context, now time.Time, buffer time.Duration) ([]database.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE finalized_at IS NULL
		  AND status <> $1
		  AND starts_at + (late_threshold_minutes * INTERVAL '1 minute') + $2::interval <= $3
		ORDER BY starts_at
	`
	return r.querySessions(ctx, query, database.SessionCancelled, bufferInterval(buffer), now)
}

// bufferInterval renders a duration as a Postgres interval literal.
func bufferInterval(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}

// MarkFinalized records that absentee marking has run for a session
func (r *SessionRepository) MarkFinalized(ctx context.Context, id int64, at time.Time) error {
	result, err := r.pool.Exec(ctx, `UPDATE sessions SET finalized_at = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark session finalized: %w", err)
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

// Verify interface compliance
var _ database.SessionStore = (*SessionRepository)(nil)
