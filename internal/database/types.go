package database

import (
	"time"

	"github.com/google/uuid"
)

// Student is an enrolled person. A student used for live recognition
// must own at least one embedding.
type Student struct {
	ID         int64
	Name       string
	StudentNo  string // external identifier, e.g. "SP21-BCS-001"
	Department string
	Email      string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StudentEmbedding is a single enrolled face template.
type StudentEmbedding struct {
	ID        int64
	StudentID int64
	Embedding []float32
	Quality   float64 // composite enrollment quality score
	Dim       int
	Model     string
	CreatedAt time.Time
}

// Course groups students and sessions.
type Course struct {
	ID         int64
	Code       string // e.g. "CS101"
	Name       string
	Instructor string
	CreatedAt  time.Time
}

// TimeSlot is a weekly timetable entry used by the sweep to auto-create sessions.
type TimeSlot struct {
	ID                   int64
	CourseID             int64
	DayOfWeek            time.Weekday
	StartMinute          int // minutes since midnight
	EndMinute            int
	LateThresholdMinutes int
	Active               bool
}

// SessionStatus is the lifecycle state of a class session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Session is a time-bounded class meeting. Sessions are never deleted;
// terminal states preserve the audit trail.
type Session struct {
	ID                   int64
	CourseID             int64
	TimeSlotID           *int64 // set when auto-created from a timetable slot
	StartsAt             time.Time
	EndsAt               time.Time
	LateThresholdMinutes int
	Status               SessionStatus
	AutoCreated          bool
	FinalizedAt          *time.Time // absentee marking has run
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LateCutoff returns the instant after which a check-in counts as LATE.
// A check-in at exactly the cutoff is still PRESENT.
func (s *Session) LateCutoff() time.Time {
	return s.StartsAt.Add(time.Duration(s.LateThresholdMinutes) * time.Minute)
}

// AttendanceStatus of a single (session, student) record.
type AttendanceStatus string

const (
	AttendancePresent  AttendanceStatus = "PRESENT"
	AttendanceLate     AttendanceStatus = "LATE"
	AttendanceAbsent   AttendanceStatus = "ABSENT"
	AttendanceIntruder AttendanceStatus = "INTRUDER"
)

// AttendanceMethod records how a row was produced.
type AttendanceMethod string

const (
	MethodAuto   AttendanceMethod = "AUTO"
	MethodManual AttendanceMethod = "MANUAL"
)

// AttendanceRecord is the canonical one-row-per-(session, student) state.
// The UNIQUE constraint on (session_id, student_id) is the correctness
// backstop against concurrent duplicate writes.
type AttendanceRecord struct {
	ID           int64
	SessionID    int64
	StudentID    int64
	CheckInTime  *time.Time // nil for ABSENT rows
	LastSeenTime *time.Time
	Status       AttendanceStatus
	Confidence   float64
	Method       AttendanceMethod
	Notes        string
	CreatedAt    time.Time
}

// AuditAction identifies an append-only audit log entry.
type AuditAction string

const (
	AuditIn       AuditAction = "IN"
	AuditOut      AuditAction = "OUT"
	AuditIntruder AuditAction = "INTRUDER"
)

// AuditEvent is one row of the append-only re-entry log. Events are never
// updated or deleted.
type AuditEvent struct {
	ID         uuid.UUID
	SessionID  int64
	StudentID  int64
	Action     AuditAction
	Suspicious bool
	Similarity float64
	OccurredAt time.Time
}

// GalleryEntry is one identity in the recognition gallery: a student and
// all of their enrolled templates.
type GalleryEntry struct {
	StudentID  int64
	Name       string
	Embeddings [][]float32
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Status SessionStatus // empty = all
	Date   *time.Time    // sessions starting on this calendar day
}
