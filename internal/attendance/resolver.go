// Package attendance turns a confirmed identity into exactly one attendance
// record per session, with an append-only audit trail for re-entries and
// intruders.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attend/internal/database"
)

// Resolution describes what a confirmed sighting produced.
type Resolution struct {
	Record   *database.AttendanceRecord
	ReEntry  bool // identity already had a record; OUT+IN audit pair appended
	Intruder bool // identity not enrolled in the session's course
}

// Resolver applies the attendance decision sequence for confirmed sightings
// and manual marks. The storage unique constraint on (session, student) is
// the backstop against concurrent duplicate writes; a lost race is recovered
// by re-reading the existing row.
type Resolver struct {
	attendance database.AttendanceStore
	audit      database.AuditLog
	courses    database.CourseStore
	now        func() time.Time
}

// NewResolver creates a resolver.
func NewResolver(attendance database.AttendanceStore, audit database.AuditLog, courses database.CourseStore) *Resolver {
	return &Resolver{
		attendance: attendance,
		audit:      audit,
		courses:    courses,
		now:        time.Now,
	}
}

// ResolveSighting handles a stabilizer-confirmed (student, similarity) pair
// against the active session.
func (r *Resolver) ResolveSighting(ctx context.Context, session *database.Session, studentID int64, similarity float64) (*Resolution, error) {
	now := r.now()

	existing, err := r.attendance.GetAttendance(ctx, session.ID, studentID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("lookup attendance: %w", err)
	}
	if existing != nil {
		return r.handleReEntry(ctx, session, existing, similarity, now)
	}

	enrolled, err := r.courses.IsEnrolled(ctx, session.CourseID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return r.handleIntruder(ctx, session, studentID, similarity, now)
	}

	status := database.AttendancePresent
	if now.After(session.LateCutoff()) {
		status = database.AttendanceLate
	}

	record := &database.AttendanceRecord{
		SessionID:    session.ID,
		StudentID:    studentID,
		CheckInTime:  &now,
		LastSeenTime: &now,
		Status:       status,
		Confidence:   similarity,
		Method:       database.MethodAuto,
	}
	if _, err := r.attendance.CreateAttendance(ctx, record); err != nil {
		if errors.Is(err, database.ErrDuplicateAttendance) {
			// Lost a race with a concurrent sighting; the existing row is canonical.
			return r.recoverFromRace(ctx, session, studentID, similarity, now)
		}
		return nil, fmt.Errorf("create attendance: %w", err)
	}

	if err := r.appendAudit(ctx, session.ID, studentID, database.AuditIn, false, similarity, now); err != nil {
		return nil, err
	}

	return &Resolution{Record: record}, nil
}

// handleReEntry appends a suspicious OUT+IN audit pair and bumps the
// sighting metadata. No second record is created.
func (r *Resolver) handleReEntry(ctx context.Context, session *database.Session, existing *database.AttendanceRecord, similarity float64, now time.Time) (*Resolution, error) {
	if err := r.appendAudit(ctx, session.ID, existing.StudentID, database.AuditOut, true, similarity, now); err != nil {
		return nil, err
	}
	if err := r.appendAudit(ctx, session.ID, existing.StudentID, database.AuditIn, true, similarity, now); err != nil {
		return nil, err
	}

	if err := r.attendance.UpdateSighting(ctx, session.ID, existing.StudentID, now, similarity); err != nil {
		return nil, fmt.Errorf("update sighting: %w", err)
	}

	updated, err := r.attendance.GetAttendance(ctx, session.ID, existing.StudentID)
	if err != nil {
		return nil, fmt.Errorf("reload attendance: %w", err)
	}
	return &Resolution{Record: updated, ReEntry: true}, nil
}

// handleIntruder records a recognized-but-unenrolled identity.
func (r *Resolver) handleIntruder(ctx context.Context, session *database.Session, studentID int64, similarity float64, now time.Time) (*Resolution, error) {
	record := &database.AttendanceRecord{
		SessionID:    session.ID,
		StudentID:    studentID,
		CheckInTime:  &now,
		LastSeenTime: &now,
		Status:       database.AttendanceIntruder,
		Confidence:   similarity,
		Method:       database.MethodAuto,
	}
	if _, err := r.attendance.CreateAttendance(ctx, record); err != nil {
		if errors.Is(err, database.ErrDuplicateAttendance) {
			return r.recoverFromRace(ctx, session, studentID, similarity, now)
		}
		return nil, fmt.Errorf("create intruder record: %w", err)
	}

	if err := r.appendAudit(ctx, session.ID, studentID, database.AuditIntruder, true, similarity, now); err != nil {
		return nil, err
	}

	log.Printf("intruder detected: student=%d session=%d similarity=%.3f", studentID, session.ID, similarity)
	return &Resolution{Record: record, Intruder: true}, nil
}

// recoverFromRace re-reads the row that won the insert race and treats the
// sighting as a re-entry against it.
func (r *Resolver) recoverFromRace(ctx context.Context, session *database.Session, studentID int64, similarity float64, now time.Time) (*Resolution, error) {
	existing, err := r.attendance.GetAttendance(ctx, session.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("reload after duplicate: %w", err)
	}
	return r.handleReEntry(ctx, session, existing, similarity, now)
}

// MarkManual records attendance on behalf of an operator, bypassing the
// recognition pipeline. The enrolled/PRESENT-or-LATE decision matches the
// automatic path; status ABSENT may be forced explicitly.
func (r *Resolver) MarkManual(ctx context.Context, session *database.Session, studentID int64, status database.AttendanceStatus, notes string) (*database.AttendanceRecord, error) {
	enrolled, err := r.courses.IsEnrolled(ctx, session.CourseID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, fmt.Errorf("student %d is not enrolled in course %d", studentID, session.CourseID)
	}

	now := r.now()
	record := &database.AttendanceRecord{
		SessionID: session.ID,
		StudentID: studentID,
		Status:    status,
		Method:    database.MethodManual,
		Notes:     notes,
	}
	if status == "" {
		record.Status = database.AttendancePresent
		if now.After(session.LateCutoff()) {
			record.Status = database.AttendanceLate
		}
	}
	if record.Status != database.AttendanceAbsent {
		record.CheckInTime = &now
		record.LastSeenTime = &now
	}

	if _, err := r.attendance.CreateAttendance(ctx, record); err != nil {
		if errors.Is(err, database.ErrDuplicateAttendance) {
			return nil, fmt.Errorf("attendance already recorded for student %d: %w", studentID, err)
		}
		return nil, fmt.Errorf("create manual attendance: %w", err)
	}
	return record, nil
}

// MarkAbsentees creates ABSENT rows for every enrolled student with no
// attendance record in the session. Existing rows are never touched.
// Returns the number of students marked.
func (r *Resolver) MarkAbsentees(ctx context.Context, session *database.Session) (int, error) {
	enrolled, err := r.courses.ListEnrolledStudents(ctx, session.CourseID)
	if err != nil {
		return 0, fmt.Errorf("list enrolled students: %w", err)
	}

	marked := 0
	for _, student := range enrolled {
		record := &database.AttendanceRecord{
			SessionID: session.ID,
			StudentID: student.ID,
			Status:    database.AttendanceAbsent,
			Method:    database.MethodAuto,
		}
		if _, err := r.attendance.CreateAttendance(ctx, record); err != nil {
			if errors.Is(err, database.ErrDuplicateAttendance) {
				continue // already present, late, or manually marked
			}
			return marked, fmt.Errorf("mark absent student %d: %w", student.ID, err)
		}
		marked++
	}
	return marked, nil
}

func (r *Resolver) appendAudit(ctx context.Context, sessionID, studentID int64, action database.AuditAction, suspicious bool, similarity float64, at time.Time) error {
	event := &database.AuditEvent{
		ID:         uuid.New(),
		SessionID:  sessionID,
		StudentID:  studentID,
		Action:     action,
		Suspicious: suspicious,
		Similarity: similarity,
		OccurredAt: at,
	}
	if err := r.audit.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
