package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateAttendance is returned by CreateAttendance when a record for
// the (session, student) pair already exists. Callers re-read and fall back
// to UpdateSighting.
var ErrDuplicateAttendance = errors.New("attendance record already exists")

// GalleryReader loads the recognition gallery: every active student with at
// least one embedding.
type GalleryReader interface {
	Gallery(ctx context.Context) ([]GalleryEntry, error)
}

// StudentStore manages students and their embeddings.
type StudentStore interface {
	CreateStudent(ctx context.Context, s *Student) (int64, error)
	GetStudent(ctx context.Context, id int64) (*Student, error)
	GetStudentByNo(ctx context.Context, studentNo string) (*Student, error)
	ListStudents(ctx context.Context, activeOnly bool) ([]Student, error)
	UpdateStudent(ctx context.Context, s *Student) error
	// DeactivateStudent soft-deletes: the student drops out of the gallery
	// but historical attendance stays intact.
	DeactivateStudent(ctx context.Context, id int64) error

	AddEmbedding(ctx context.Context, e *StudentEmbedding) (int64, error)
	ListEmbeddings(ctx context.Context, studentID int64) ([]StudentEmbedding, error)
	CountEmbeddings(ctx context.Context, studentID int64) (int, error)
	DeleteEmbeddings(ctx context.Context, studentID int64) error
}

// CourseStore manages courses and weekly timetable slots.
type CourseStore interface {
	CreateCourse(ctx context.Context, c *Course) (int64, error)
	GetCourse(ctx context.Context, id int64) (*Course, error)
	ListCourses(ctx context.Context) ([]Course, error)

	// EnrollStudent is idempotent; enrolling twice is not an error.
	EnrollStudent(ctx context.Context, courseID, studentID int64) error
	UnenrollStudent(ctx context.Context, courseID, studentID int64) error
	IsEnrolled(ctx context.Context, courseID, studentID int64) (bool, error)
	ListEnrolledStudents(ctx context.Context, courseID int64) ([]Student, error)

	CreateTimeSlot(ctx context.Context, ts *TimeSlot) (int64, error)
	ListTimeSlots(ctx context.Context, courseID int64) ([]TimeSlot, error)
	ListActiveTimeSlots(ctx context.Context) ([]TimeSlot, error)
	DeactivateTimeSlot(ctx context.Context, id int64) error
}

// SessionStore manages session rows and their guarded lifecycle transitions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) (int64, error)
	GetSession(ctx context.Context, id int64) (*Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]Session, error)

	// ActiveSession returns the single ACTIVE session, or ErrNotFound.
	ActiveSession(ctx context.Context) (*Session, error)

	// FindOverlapping returns non-terminal sessions whose [starts, ends)
	// window intersects the given one.
	FindOverlapping(ctx context.Context, startsAt, endsAt time.Time) ([]Session, error)

	// SessionExistsForSlot reports whether a session auto-created from the
	// slot already covers the given start instant.
	SessionExistsForSlot(ctx context.Context, slotID int64, startsAt time.Time) (bool, error)

	// TransitionStatus performs a compare-and-set status change. It returns
	// false when the session was not in any of the from states, which makes
	// activate/end idempotent under concurrent sweeps. When endsAt is
	// non-nil the session's ends_at is updated in the same statement.
	TransitionStatus(ctx context.Context, id int64, from []SessionStatus, to SessionStatus, endsAt *time.Time) (bool, error)

	// DueForActivation returns SCHEDULED sessions whose starts_at <= now.
	DueForActivation(ctx context.Context, now time.Time) ([]Session, error)
	// DueForCompletion returns ACTIVE sessions whose ends_at <= now.
	DueForCompletion(ctx context.Context, now time.Time) ([]Session, error)
	// DueForFinalization returns sessions past their absentee cutoff
	// (starts_at + late threshold + buffer) that have not been finalized.
	DueForFinalization(ctx context.Context, now time.Time, buffer time.Duration) ([]Session, error)
	MarkFinalized(ctx context.Context, id int64, at time.Time) error
}

// AttendanceStore manages per-session attendance rows.
type AttendanceStore interface {
	// CreateAttendance inserts a new record. Returns ErrDuplicateAttendance
	// when the (session, student) pair already has one.
	CreateAttendance(ctx context.Context, r *AttendanceRecord) (int64, error)
	GetAttendance(ctx context.Context, sessionID, studentID int64) (*AttendanceRecord, error)
	// UpdateSighting bumps last_seen_time and raises confidence if the new
	// value is higher. Status and check_in_time are left untouched.
	UpdateSighting(ctx context.Context, sessionID, studentID int64, seenAt time.Time, confidence float64) error
	ListBySession(ctx context.Context, sessionID int64) ([]AttendanceRecord, error)
}

// AuditLog is the append-only entry/exit event log.
type AuditLog interface {
	Append(ctx context.Context, e *AuditEvent) error
	ListAuditBySession(ctx context.Context, sessionID int64) ([]AuditEvent, error)
}
