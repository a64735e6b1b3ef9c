// Package session implements the class session lifecycle: guarded
// SCHEDULED → ACTIVE → COMPLETED transitions, overlap-checked creation,
// timetable auto-creation, and the periodic sweeps.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/face-attend/internal/attendance"
	"github.com/kozaktomas/face-attend/internal/database"
)

// ErrSessionConflict is returned when a new session's window collides with
// an existing one competing for the recognition stream.
var ErrSessionConflict = errors.New("session window conflicts with an existing session")

// ErrInvalidTransition is returned when a manual lifecycle action is not
// allowed from the session's current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

// Service owns session lifecycle decisions. All transitions are
// compare-and-set at the storage layer, so the periodic sweep and manual
// HTTP actions can race without double-applying.
type Service struct {
	sessions database.SessionStore
	courses  database.CourseStore
	resolver *attendance.Resolver

	defaultLateThreshold int
	absenteeBuffer       time.Duration
	now                  func() time.Time
}

// NewService creates a session service.
func NewService(sessions database.SessionStore, courses database.CourseStore, resolver *attendance.Resolver, defaultLateThreshold int, absenteeBuffer time.Duration) *Service {
	return &Service{
		sessions:             sessions,
		courses:              courses,
		resolver:             resolver,
		defaultLateThreshold: defaultLateThreshold,
		absenteeBuffer:       absenteeBuffer,
		now:                  time.Now,
	}
}

// Create validates the window, applies the overlap rule, and inserts the
// session as ACTIVE when its start has already passed, SCHEDULED otherwise.
//
// Overlap rule: an ACTIVE session always conflicts; a SCHEDULED session
// conflicts only when the new session would itself start ACTIVE, since two
// future sessions can coexist until one of them goes live.
func (s *Service) Create(ctx context.Context, courseID int64, startsAt, endsAt time.Time, lateThresholdMinutes int) (*database.Session, error) {
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("session must end after it starts")
	}
	if lateThresholdMinutes <= 0 {
		lateThresholdMinutes = s.defaultLateThreshold
	}

	if _, err := s.courses.GetCourse(ctx, courseID); err != nil {
		return nil, fmt.Errorf("lookup course: %w", err)
	}

	now := s.now()
	wouldBeActive := !startsAt.After(now)

	overlapping, err := s.sessions.FindOverlapping(ctx, startsAt, endsAt)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	for _, other := range overlapping {
		if other.Status == database.SessionActive {
			return nil, fmt.Errorf("%w: session %d is active", ErrSessionConflict, other.ID)
		}
		if other.Status == database.SessionScheduled && wouldBeActive {
			return nil, fmt.Errorf("%w: session %d is scheduled in the window", ErrSessionConflict, other.ID)
		}
	}

	status := database.SessionScheduled
	if wouldBeActive {
		status = database.SessionActive
	}

	session := &database.Session{
		CourseID:             courseID,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		LateThresholdMinutes: lateThresholdMinutes,
		Status:               status,
	}
	if _, err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Activate moves a SCHEDULED session to ACTIVE. Activating an already
// ACTIVE session is a no-op, not an error.
func (s *Service) Activate(ctx context.Context, id int64) (*database.Session, error) {
	ok, err := s.sessions.TransitionStatus(ctx, id,
		[]database.SessionStatus{database.SessionScheduled}, database.SessionActive, nil)
	if err != nil {
		return nil, fmt.Errorf("activate session: %w", err)
	}

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && session.Status != database.SessionActive {
		return nil, fmt.Errorf("%w: cannot activate %s session", ErrInvalidTransition, session.Status)
	}
	return session, nil
}

// End force-completes an ACTIVE session immediately, truncating ends_at to
// now. Ending an already COMPLETED session is a no-op.
func (s *Service) End(ctx context.Context, id int64) (*database.Session, error) {
	now := s.now()
	ok, err := s.sessions.TransitionStatus(ctx, id,
		[]database.SessionStatus{database.SessionActive}, database.SessionCompleted, &now)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && session.Status != database.SessionCompleted {
		return nil, fmt.Errorf("%w: cannot end %s session", ErrInvalidTransition, session.Status)
	}
	return session, nil
}

// Cancel moves any non-terminal session to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id int64) (*database.Session, error) {
	ok, err := s.sessions.TransitionStatus(ctx, id,
		[]database.SessionStatus{database.SessionScheduled, database.SessionActive}, database.SessionCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok && session.Status != database.SessionCancelled {
		return nil, fmt.Errorf("%w: cannot cancel %s session", ErrInvalidTransition, session.Status)
	}
	return session, nil
}

// ActivateDue flips every SCHEDULED session whose start has passed but whose
// end has not. Returns the number activated.
func (s *Service) ActivateDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.sessions.DueForActivation(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("query due sessions: %w", err)
	}

	activated := 0
	for _, session := range due {
		if !session.EndsAt.After(now) {
			// Missed entirely (e.g. the process was down); let the
			// finalization sweep handle absentees.
			continue
		}
		ok, err := s.sessions.TransitionStatus(ctx, session.ID,
			[]database.SessionStatus{database.SessionScheduled}, database.SessionActive, nil)
		if err != nil {
			return activated, fmt.Errorf("activate session %d: %w", session.ID, err)
		}
		if ok {
			activated++
		}
	}
	return activated, nil
}

// EndExpired completes every ACTIVE session whose end has passed.
func (s *Service) EndExpired(ctx context.Context) (int, error) {
	due, err := s.sessions.DueForCompletion(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("query expired sessions: %w", err)
	}

	ended := 0
	for _, session := range due {
		ok, err := s.sessions.TransitionStatus(ctx, session.ID,
			[]database.SessionStatus{database.SessionActive}, database.SessionCompleted, nil)
		if err != nil {
			return ended, fmt.Errorf("complete session %d: %w", session.ID, err)
		}
		if ok {
			ended++
		}
	}
	return ended, nil
}

// FinalizeDue runs absentee marking for every session past its cutoff
// (starts_at + late threshold + buffer) that has not been finalized. The
// session status is re-read before acting so a cancellation that happened
// after scheduling turns the work into a no-op. Runs once per session,
// guarded by finalized_at.
func (s *Service) FinalizeDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.sessions.DueForFinalization(ctx, now, s.absenteeBuffer)
	if err != nil {
		return 0, fmt.Errorf("query finalizable sessions: %w", err)
	}

	finalized := 0
	for _, candidate := range due {
		session, err := s.sessions.GetSession(ctx, candidate.ID)
		if err != nil {
			return finalized, fmt.Errorf("reload session %d: %w", candidate.ID, err)
		}
		if session.Status == database.SessionCancelled {
			continue
		}

		marked, err := s.resolver.MarkAbsentees(ctx, session)
		if err != nil {
			return finalized, fmt.Errorf("mark absentees for session %d: %w", session.ID, err)
		}

		// Force completion; already COMPLETED is left untouched.
		if _, err := s.sessions.TransitionStatus(ctx, session.ID,
			[]database.SessionStatus{database.SessionScheduled, database.SessionActive},
			database.SessionCompleted, nil); err != nil {
			return finalized, fmt.Errorf("complete session %d: %w", session.ID, err)
		}

		if err := s.sessions.MarkFinalized(ctx, session.ID, now); err != nil {
			return finalized, fmt.Errorf("finalize session %d: %w", session.ID, err)
		}
		finalized++
		log.Printf("finalized session %d: %d absentees marked", session.ID, marked)
	}
	return finalized, nil
}

// CreateFromTimetable creates a session for every active weekly slot whose
// window covers now and which has no session yet for today's occurrence.
func (s *Service) CreateFromTimetable(ctx context.Context) (int, error) {
	now := s.now()
	slots, err := s.courses.ListActiveTimeSlots(ctx)
	if err != nil {
		return 0, fmt.Errorf("list time slots: %w", err)
	}

	created := 0
	for _, slot := range slots {
		if now.Weekday() != slot.DayOfWeek {
			continue
		}
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		startsAt := midnight.Add(time.Duration(slot.StartMinute) * time.Minute)
		endsAt := midnight.Add(time.Duration(slot.EndMinute) * time.Minute)
		if now.Before(startsAt) || !now.Before(endsAt) {
			continue
		}

		exists, err := s.sessions.SessionExistsForSlot(ctx, slot.ID, startsAt)
		if err != nil {
			return created, fmt.Errorf("check slot %d: %w", slot.ID, err)
		}
		if exists {
			continue
		}

		overlapping, err := s.sessions.FindOverlapping(ctx, startsAt, endsAt)
		if err != nil {
			return created, fmt.Errorf("check overlap for slot %d: %w", slot.ID, err)
		}
		if len(overlapping) > 0 {
			log.Printf("skipping slot %d: window conflicts with session %d", slot.ID, overlapping[0].ID)
			continue
		}

		slotID := slot.ID
		session := &database.Session{
			CourseID:             slot.CourseID,
			TimeSlotID:           &slotID,
			StartsAt:             startsAt,
			EndsAt:               endsAt,
			LateThresholdMinutes: slot.LateThresholdMinutes,
			Status:               database.SessionActive,
			AutoCreated:          true,
		}
		if session.LateThresholdMinutes <= 0 {
			session.LateThresholdMinutes = s.defaultLateThreshold
		}
		if _, err := s.sessions.CreateSession(ctx, session); err != nil {
			return created, fmt.Errorf("create session for slot %d: %w", slot.ID, err)
		}
		created++
	}
	return created, nil
}
