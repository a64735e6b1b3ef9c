// Package scheduler runs the periodic session sweeps in the background.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/kozaktomas/face-attend/internal/session"
)

// Scheduler ticks the session service sweeps at a fixed interval until the
// context is cancelled.
type Scheduler struct {
	sessions *session.Service
	interval time.Duration
}

// New creates a scheduler ticking at the given interval.
func New(sessions *session.Service, interval time.Duration) *Scheduler {
	return &Scheduler{
		sessions: sessions,
		interval: interval,
	}
}

// Run blocks, executing one sweep immediately and then one per interval,
// until ctx is cancelled. Sweep errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass of all session maintenance jobs. Order matters:
// timetable creation and activation first so a session that just opened can
// collect sightings before the completion and absentee jobs run.
func (s *Scheduler) Sweep(ctx context.Context) {
	if n, err := s.sessions.CreateFromTimetable(ctx); err != nil {
		log.Printf("timetable sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("timetable sweep: created %d session(s)", n)
	}

	if n, err := s.sessions.ActivateDue(ctx); err != nil {
		log.Printf("activation sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("activation sweep: activated %d session(s)", n)
	}

	if n, err := s.sessions.EndExpired(ctx); err != nil {
		log.Printf("completion sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("completion sweep: completed %d session(s)", n)
	}

	if n, err := s.sessions.FinalizeDue(ctx); err != nil {
		log.Printf("finalization sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("finalization sweep: finalized %d session(s)", n)
	}
}
