package attendance

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attend/internal/database"
	"github.com/kozaktomas/face-attend/internal/database/mock"
)

type fixture struct {
	resolver *Resolver
	records  *mock.MockAttendanceStore
	courses  *mock.MockCourseStore
	session  *database.Session
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	records := mock.NewMockAttendanceStore()
	courses := mock.NewMockCourseStore()
	courses.AddCourse(database.Course{ID: 3, Code: "CS101"})
	courses.SeedEnrollment(3, database.Student{ID: 1, Name: "Ada", Active: true})
	courses.SeedEnrollment(3, database.Student{ID: 2, Name: "Grace", Active: true})

	starts := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	session := &database.Session{
		ID:                   7,
		CourseID:             3,
		StartsAt:             starts,
		EndsAt:               starts.Add(time.Hour),
		LateThresholdMinutes: 15,
		Status:               database.SessionActive,
	}

	f := &fixture{
		resolver: NewResolver(records, records, courses),
		records:  records,
		courses:  courses,
		session:  session,
		now:      starts.Add(5 * time.Minute),
	}
	f.resolver.now = func() time.Time { return f.now }
	return f
}

func TestResolveSightingPresent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.resolver.ResolveSighting(ctx, f.session, 1, 0.92)
	if err != nil {
		t.Fatalf("ResolveSighting failed: %v", err)
	}
	if res.ReEntry || res.Intruder {
		t.Errorf("Expected plain check-in, got %+v", res)
	}
	if res.Record.Status != database.AttendancePresent {
		t.Errorf("Expected PRESENT, got %s", res.Record.Status)
	}
	if res.Record.CheckInTime == nil || !res.Record.CheckInTime.Equal(f.now) {
		t.Errorf("Expected check-in at %v, got %v", f.now, res.Record.CheckInTime)
	}

	events := f.records.Events()
	if len(events) != 1 {
		t.Fatalf("Expected 1 audit event, got %d", len(events))
	}
	if events[0].Action != database.AuditIn || events[0].Suspicious {
		t.Errorf("Expected non-suspicious IN event, got %+v", events[0])
	}
}

func TestLateBoundary(t *testing.T) {
	t.Run("at exactly the cutoff is PRESENT", func(t *testing.T) {
		f := newFixture(t)
		f.now = f.session.LateCutoff()
		res, err := f.resolver.ResolveSighting(context.Background(), f.session, 1, 0.9)
		if err != nil {
			t.Fatalf("ResolveSighting failed: %v", err)
		}
		if res.Record.Status != database.AttendancePresent {
			t.Errorf("Expected PRESENT at the cutoff, got %s", res.Record.Status)
		}
	})

	t.Run("one second past the cutoff is LATE", func(t *testing.T) {
		f := newFixture(t)
		f.now = f.session.LateCutoff().Add(time.Second)
		res, err := f.resolver.ResolveSighting(context.Background(), f.session, 1, 0.9)
		if err != nil {
			t.Fatalf("ResolveSighting failed: %v", err)
		}
		if res.Record.Status != database.AttendanceLate {
			t.Errorf("Expected LATE past the cutoff, got %s", res.Record.Status)
		}
	})
}

func TestReEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.ResolveSighting(ctx, f.session, 1, 0.85); err != nil {
		t.Fatalf("First sighting failed: %v", err)
	}

	f.now = f.now.Add(10 * time.Minute)
	res, err := f.resolver.ResolveSighting(ctx, f.session, 1, 0.95)
	if err != nil {
		t.Fatalf("Second sighting failed: %v", err)
	}
	if !res.ReEntry {
		t.Fatal("Expected re-entry")
	}
	if res.Record.Status != database.AttendancePresent {
		t.Errorf("Expected status untouched, got %s", res.Record.Status)
	}
	if res.Record.Confidence != 0.95 {
		t.Errorf("Expected confidence raised to 0.95, got %f", res.Record.Confidence)
	}
	if res.Record.LastSeenTime == nil || !res.Record.LastSeenTime.Equal(f.now) {
		t.Errorf("Expected last seen bumped to %v, got %v", f.now, res.Record.LastSeenTime)
	}

	// One record, and a suspicious OUT+IN pair appended after the original IN
	list, _ := f.records.ListBySession(ctx, f.session.ID)
	if len(list) != 1 {
		t.Fatalf("Expected exactly one record, got %d", len(list))
	}
	events := f.records.Events()
	if len(events) != 3 {
		t.Fatalf("Expected 3 audit events, got %d", len(events))
	}
	if events[1].Action != database.AuditOut || !events[1].Suspicious {
		t.Errorf("Expected suspicious OUT, got %+v", events[1])
	}
	if events[2].Action != database.AuditIn || !events[2].Suspicious {
		t.Errorf("Expected suspicious IN, got %+v", events[2])
	}
}

func TestReEntryKeepsHigherConfidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.resolver.ResolveSighting(ctx, f.session, 1, 0.95)
	res, err := f.resolver.ResolveSighting(ctx, f.session, 1, 0.70)
	if err != nil {
		t.Fatalf("ResolveSighting failed: %v", err)
	}
	if res.Record.Confidence != 0.95 {
		t.Errorf("Expected confidence to stay at 0.95, got %f", res.Record.Confidence)
	}
}

func TestIntruder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Student 99 is enrolled in no course
	res, err := f.resolver.ResolveSighting(ctx, f.session, 99, 0.88)
	if err != nil {
		t.Fatalf("ResolveSighting failed: %v", err)
	}
	if !res.Intruder {
		t.Fatal("Expected intruder resolution")
	}
	if res.Record.Status != database.AttendanceIntruder {
		t.Errorf("Expected INTRUDER status, got %s", res.Record.Status)
	}

	events := f.records.Events()
	if len(events) != 1 || events[0].Action != database.AuditIntruder || !events[0].Suspicious {
		t.Errorf("Expected suspicious INTRUDER event, got %+v", events)
	}
}

func TestDuplicateRaceRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The competitor's insert lands between our lookup and our insert; the
	// unique constraint fires and the existing row becomes canonical.
	f.records.ForceDuplicate = true

	res, err := f.resolver.ResolveSighting(ctx, f.session, 1, 0.9)
	if err != nil {
		t.Fatalf("Expected race recovery, got error: %v", err)
	}
	if !res.ReEntry {
		t.Error("Expected race loser to treat the winner's row as a re-entry")
	}

	list, _ := f.records.ListBySession(ctx, f.session.ID)
	if len(list) != 1 {
		t.Errorf("Expected single canonical record after race, got %d", len(list))
	}
}

func TestMarkManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("enrolled student", func(t *testing.T) {
		rec, err := f.resolver.MarkManual(ctx, f.session, 1, "", "seen by instructor")
		if err != nil {
			t.Fatalf("MarkManual failed: %v", err)
		}
		if rec.Method != database.MethodManual {
			t.Errorf("Expected MANUAL method, got %s", rec.Method)
		}
		if rec.Status != database.AttendancePresent {
			t.Errorf("Expected PRESENT, got %s", rec.Status)
		}
	})

	t.Run("duplicate is an error", func(t *testing.T) {
		if _, err := f.resolver.MarkManual(ctx, f.session, 1, "", ""); err == nil {
			t.Error("Expected error marking twice")
		}
	})

	t.Run("unenrolled student rejected", func(t *testing.T) {
		_, err := f.resolver.MarkManual(ctx, f.session, 99, "", "")
		if err == nil || !strings.Contains(err.Error(), "not enrolled") {
			t.Errorf("Expected enrollment error, got %v", err)
		}
	})

	t.Run("forced absent has no check-in", func(t *testing.T) {
		rec, err := f.resolver.MarkManual(ctx, f.session, 2, database.AttendanceAbsent, "left early")
		if err != nil {
			t.Fatalf("MarkManual failed: %v", err)
		}
		if rec.Status != database.AttendanceAbsent || rec.CheckInTime != nil {
			t.Errorf("Expected ABSENT without check-in, got %+v", rec)
		}
	})
}

func TestMarkAbsentees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Student 1 checked in; student 2 did not.
	if _, err := f.resolver.ResolveSighting(ctx, f.session, 1, 0.9); err != nil {
		t.Fatalf("Sighting failed: %v", err)
	}

	marked, err := f.resolver.MarkAbsentees(ctx, f.session)
	if err != nil {
		t.Fatalf("MarkAbsentees failed: %v", err)
	}
	if marked != 1 {
		t.Errorf("Expected 1 absentee, got %d", marked)
	}

	rec, err := f.records.GetAttendance(ctx, f.session.ID, 2)
	if err != nil {
		t.Fatalf("Expected absent record: %v", err)
	}
	if rec.Status != database.AttendanceAbsent || rec.CheckInTime != nil {
		t.Errorf("Expected ABSENT without check-in, got %+v", rec)
	}

	// Existing records are untouched
	rec1, _ := f.records.GetAttendance(ctx, f.session.ID, 1)
	if rec1.Status != database.AttendancePresent {
		t.Errorf("Expected PRESENT preserved, got %s", rec1.Status)
	}

	// Idempotent
	marked, err = f.resolver.MarkAbsentees(ctx, f.session)
	if err != nil {
		t.Fatalf("MarkAbsentees failed: %v", err)
	}
	if marked != 0 {
		t.Errorf("Expected no new absentees, got %d", marked)
	}
}
