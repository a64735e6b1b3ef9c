package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-attend/internal/attendance"
	"github.com/kozaktomas/face-attend/internal/database"
	"github.com/kozaktomas/face-attend/internal/database/mock"
)

type fixture struct {
	sessions *mock.MockSessionStore
	courses  *mock.MockCourseStore
	records  *mock.MockAttendanceStore
	svc      *Service
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sessions: mock.NewMockSessionStore(),
		courses:  mock.NewMockCourseStore(),
		records:  mock.NewMockAttendanceStore(),
		now:      time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), // a Monday
	}

	resolver := attendance.NewResolver(f.records, f.records, f.courses)
	f.svc = NewService(f.sessions, f.courses, resolver, 15, 10*time.Minute)
	f.svc.now = func() time.Time { return f.now }

	if _, err := f.courses.CreateCourse(context.Background(), &database.Course{Code: "CS101", Name: "Intro"}); err != nil {
		t.Fatalf("Failed to create course: %v", err)
	}
	return f
}

func (f *fixture) seedSession(id int64, status database.SessionStatus, startsAt, endsAt time.Time) {
	f.sessions.AddSession(database.Session{
		ID:                   id,
		CourseID:             1,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		LateThresholdMinutes: 15,
		Status:               status,
	})
}

func TestCreateStatusDependsOnStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	future, err := f.svc.Create(ctx, 1, f.now.Add(time.Hour), f.now.Add(2*time.Hour), 0)
	if err != nil {
		t.Fatalf("Failed to create future session: %v", err)
	}
	if future.Status != database.SessionScheduled {
		t.Errorf("Expected future session to be SCHEDULED, got %s", future.Status)
	}
	if future.LateThresholdMinutes != 15 {
		t.Errorf("Expected default late threshold 15, got %d", future.LateThresholdMinutes)
	}

	live, err := f.svc.Create(ctx, 1, f.now.Add(-5*time.Minute), f.now.Add(55*time.Minute), 10)
	if err != nil {
		t.Fatalf("Failed to create live session: %v", err)
	}
	if live.Status != database.SessionActive {
		t.Errorf("Expected started session to be ACTIVE, got %s", live.Status)
	}
	if live.LateThresholdMinutes != 10 {
		t.Errorf("Expected late threshold 10, got %d", live.LateThresholdMinutes)
	}
}

func TestCreateRejectsInvalidWindow(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Create(context.Background(), 1, f.now, f.now, 10); err == nil {
		t.Error("Expected error for zero-length window")
	}
	if _, err := f.svc.Create(context.Background(), 99, f.now, f.now.Add(time.Hour), 10); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown course, got %v", err)
	}
}

func TestCreateOverlapRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// An active session blocks any overlapping creation, live or future.
	f.seedSession(1, database.SessionActive, f.now.Add(-30*time.Minute), f.now.Add(30*time.Minute))

	if _, err := f.svc.Create(ctx, 1, f.now, f.now.Add(time.Hour), 10); !errors.Is(err, ErrSessionConflict) {
		t.Errorf("Expected conflict with active session, got %v", err)
	}
	if _, err := f.svc.Create(ctx, 1, f.now.Add(10*time.Minute), f.now.Add(70*time.Minute), 10); !errors.Is(err, ErrSessionConflict) {
		t.Errorf("Expected conflict for future session overlapping active one, got %v", err)
	}
}

func TestCreateScheduledOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSession(1, database.SessionScheduled, f.now.Add(-10*time.Minute), f.now.Add(50*time.Minute))

	// Two sessions merely scheduled over the same window can coexist.
	if _, err := f.svc.Create(ctx, 1, f.now.Add(time.Hour), f.now.Add(2*time.Hour), 10); err != nil {
		t.Errorf("Unexpected conflict between two future sessions: %v", err)
	}

	// But a session that would go live immediately collides with it.
	if _, err := f.svc.Create(ctx, 1, f.now, f.now.Add(30*time.Minute), 10); !errors.Is(err, ErrSessionConflict) {
		t.Errorf("Expected conflict when going live inside a scheduled window, got %v", err)
	}
}

func TestManualTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSession(1, database.SessionScheduled, f.now, f.now.Add(time.Hour))

	s, err := f.svc.Activate(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	if s.Status != database.SessionActive {
		t.Errorf("Expected ACTIVE, got %s", s.Status)
	}

	// Activating again is a no-op.
	if _, err := f.svc.Activate(ctx, 1); err != nil {
		t.Errorf("Expected idempotent activate, got %v", err)
	}

	s, err = f.svc.End(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to end: %v", err)
	}
	if s.Status != database.SessionCompleted {
		t.Errorf("Expected COMPLETED, got %s", s.Status)
	}
	if !s.EndsAt.Equal(f.now) {
		t.Errorf("Expected ends_at truncated to now, got %v", s.EndsAt)
	}

	// Ending again is a no-op; reactivating a completed session is not.
	if _, err := f.svc.End(ctx, 1); err != nil {
		t.Errorf("Expected idempotent end, got %v", err)
	}
	if _, err := f.svc.Activate(ctx, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected invalid transition from COMPLETED, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, 1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected invalid cancel of COMPLETED session, got %v", err)
	}
}

func TestCancelScheduled(t *testing.T) {
	f := newFixture(t)

	f.seedSession(1, database.SessionScheduled, f.now.Add(time.Hour), f.now.Add(2*time.Hour))

	s, err := f.svc.Cancel(context.Background(), 1)
	if err != nil {
		t.Fatalf("Failed to cancel: %v", err)
	}
	if s.Status != database.SessionCancelled {
		t.Errorf("Expected CANCELLED, got %s", s.Status)
	}
}

func TestActivateDue(t *testing.T) {
	f := newFixture(t)

	f.seedSession(1, database.SessionScheduled, f.now.Add(-5*time.Minute), f.now.Add(55*time.Minute))
	f.seedSession(2, database.SessionScheduled, f.now.Add(time.Hour), f.now.Add(2*time.Hour))
	// Fully in the past: left for the finalization sweep.
	f.seedSession(3, database.SessionScheduled, f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour))

	n, err := f.svc.ActivateDue(context.Background())
	if err != nil {
		t.Fatalf("Failed to run activation sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 activated session, got %d", n)
	}

	s, _ := f.sessions.GetSession(context.Background(), 1)
	if s.Status != database.SessionActive {
		t.Errorf("Expected session 1 ACTIVE, got %s", s.Status)
	}
	s, _ = f.sessions.GetSession(context.Background(), 3)
	if s.Status != database.SessionScheduled {
		t.Errorf("Expected missed session to stay SCHEDULED, got %s", s.Status)
	}
}

func TestEndExpired(t *testing.T) {
	f := newFixture(t)

	f.seedSession(1, database.SessionActive, f.now.Add(-2*time.Hour), f.now.Add(-time.Minute))
	f.seedSession(2, database.SessionActive, f.now.Add(-30*time.Minute), f.now.Add(30*time.Minute))

	n, err := f.svc.EndExpired(context.Background())
	if err != nil {
		t.Fatalf("Failed to run completion sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 ended session, got %d", n)
	}

	s, _ := f.sessions.GetSession(context.Background(), 1)
	if s.Status != database.SessionCompleted {
		t.Errorf("Expected session 1 COMPLETED, got %s", s.Status)
	}
	s, _ = f.sessions.GetSession(context.Background(), 2)
	if s.Status != database.SessionActive {
		t.Errorf("Expected session 2 still ACTIVE, got %s", s.Status)
	}
}

func TestFinalizeDueMarksAbsentees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Session started 2h ago with a 15 minute threshold and 10 minute
	// buffer, so its cutoff is long past.
	f.seedSession(1, database.SessionActive, f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))

	f.courses.SeedEnrollment(1, database.Student{ID: 1, Name: "Alice Novak", Active: true})
	f.courses.SeedEnrollment(1, database.Student{ID: 2, Name: "Bob Svoboda", Active: true})
	f.records.AddRecord(database.AttendanceRecord{
		SessionID: 1,
		StudentID: 1,
		Status:    database.AttendancePresent,
		Method:    database.MethodAuto,
	})

	n, err := f.svc.FinalizeDue(ctx)
	if err != nil {
		t.Fatalf("Failed to run finalization sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 finalized session, got %d", n)
	}

	records, _ := f.records.ListBySession(ctx, 1)
	if len(records) != 2 {
		t.Fatalf("Expected 2 attendance records, got %d", len(records))
	}
	for _, r := range records {
		if r.StudentID == 2 && r.Status != database.AttendanceAbsent {
			t.Errorf("Expected student 2 marked ABSENT, got %s", r.Status)
		}
		if r.StudentID == 1 && r.Status != database.AttendancePresent {
			t.Errorf("Expected student 1 to stay PRESENT, got %s", r.Status)
		}
	}

	s, _ := f.sessions.GetSession(ctx, 1)
	if s.Status != database.SessionCompleted {
		t.Errorf("Expected session forced to COMPLETED, got %s", s.Status)
	}
	if s.FinalizedAt == nil {
		t.Error("Expected finalized_at to be set")
	}

	// The sweep never runs twice for the same session.
	n, err = f.svc.FinalizeDue(ctx)
	if err != nil {
		t.Fatalf("Failed to re-run finalization sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected finalization to be one-shot, got %d", n)
	}
}

func TestFinalizeDueSkipsCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSession(1, database.SessionCancelled, f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))
	f.courses.SeedEnrollment(1, database.Student{ID: 1, Name: "Alice Novak", Active: true})

	n, err := f.svc.FinalizeDue(ctx)
	if err != nil {
		t.Fatalf("Failed to run finalization sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected cancelled session to be skipped, got %d finalized", n)
	}
	records, _ := f.records.ListBySession(ctx, 1)
	if len(records) != 0 {
		t.Errorf("Expected no absentee records for cancelled session, got %d", len(records))
	}
}

func TestCreateFromTimetable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// f.now is Monday 10:00 UTC.
	slotID, err := f.courses.CreateTimeSlot(ctx, &database.TimeSlot{
		CourseID:             1,
		DayOfWeek:            time.Monday,
		StartMinute:          9 * 60,
		EndMinute:            11 * 60,
		LateThresholdMinutes: 10,
		Active:               true,
	})
	if err != nil {
		t.Fatalf("Failed to create time slot: %v", err)
	}
	// Wrong day, never triggers.
	if _, err := f.courses.CreateTimeSlot(ctx, &database.TimeSlot{
		CourseID:    1,
		DayOfWeek:   time.Tuesday,
		StartMinute: 9 * 60,
		EndMinute:   11 * 60,
		Active:      true,
	}); err != nil {
		t.Fatalf("Failed to create time slot: %v", err)
	}

	n, err := f.svc.CreateFromTimetable(ctx)
	if err != nil {
		t.Fatalf("Failed to run timetable sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 auto-created session, got %d", n)
	}

	s, err := f.sessions.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("Expected an active session: %v", err)
	}
	if !s.AutoCreated || s.TimeSlotID == nil || *s.TimeSlotID != slotID {
		t.Errorf("Expected session linked to slot %d, got %+v", slotID, s)
	}
	wantStart := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if !s.StartsAt.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, s.StartsAt)
	}

	// Re-running the sweep does not duplicate the session.
	n, err = f.svc.CreateFromTimetable(ctx)
	if err != nil {
		t.Fatalf("Failed to re-run timetable sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no duplicate session, got %d created", n)
	}
}
