package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attend/internal/attendance"
	"github.com/kozaktomas/face-attend/internal/database"
	"github.com/kozaktomas/face-attend/internal/extractor"
)

// OutcomeKind classifies the result of processing one frame. Frequent
// non-exceptional states (no face, no active session) are outcomes, not
// errors; only extractor or storage failures surface as errors.
type OutcomeKind string

const (
	OutcomeNoActiveSession OutcomeKind = "no_active_session"
	OutcomeNoFace          OutcomeKind = "no_face"
	OutcomeMultipleFaces   OutcomeKind = "multiple_faces"
	OutcomeNoMatch         OutcomeKind = "no_match"
	OutcomePending         OutcomeKind = "pending" // matched, awaiting K-of-N
	OutcomeConfirmed       OutcomeKind = "confirmed"
)

// Outcome is the result of one frame through the pipeline.
type Outcome struct {
	Kind       OutcomeKind
	StudentID  int64
	Name       string
	Similarity float64
	Progress   *Progress
	Resolution *attendance.Resolution // set when Kind == OutcomeConfirmed
}

// FrameExtractor is the face engine dependency.
type FrameExtractor interface {
	DetectAndEmbed(ctx context.Context, imageData []byte) (*extractor.Response, error)
}

// Engine runs the single-frame recognition pipeline: active-session check,
// face extraction, gallery matching, K-of-N stabilization, and on
// confirmation the attendance resolution.
type Engine struct {
	extractor  FrameExtractor
	gallery    database.GalleryReader
	sessions   database.SessionStore
	matcher    *Matcher
	stabilizer *Stabilizer
	resolver   *attendance.Resolver
	maxFrame   int
}

// NewEngine wires the pipeline. maxFrameSize of 0 disables downscaling.
func NewEngine(
	ext FrameExtractor,
	gallery database.GalleryReader,
	sessions database.SessionStore,
	matcher *Matcher,
	stabilizer *Stabilizer,
	resolver *attendance.Resolver,
	maxFrameSize int,
) *Engine {
	return &Engine{
		extractor:  ext,
		gallery:    gallery,
		sessions:   sessions,
		matcher:    matcher,
		stabilizer: stabilizer,
		resolver:   resolver,
		maxFrame:   maxFrameSize,
	}
}

// ProcessFrame runs one camera frame through the pipeline.
func (e *Engine) ProcessFrame(ctx context.Context, frame []byte) (*Outcome, error) {
	session, err := e.sessions.ActiveSession(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return &Outcome{Kind: OutcomeNoActiveSession}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup active session: %w", err)
	}

	prepared, err := extractor.PrepareFrame(frame, e.maxFrame)
	if err != nil {
		// Malformed image is input rejection, not a pipeline fault.
		return &Outcome{Kind: OutcomeNoFace}, nil
	}

	resp, err := e.extractor.DetectAndEmbed(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("face extraction: %w", err)
	}
	if resp.FacesCount == 0 || len(resp.Faces) == 0 {
		return &Outcome{Kind: OutcomeNoFace}, nil
	}
	if resp.FacesCount > 1 {
		return &Outcome{Kind: OutcomeMultipleFaces}, nil
	}

	gallery, err := e.gallery.Gallery(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}

	match, ok := e.matcher.BestMatch(resp.Faces[0].Embedding, gallery)
	if !ok {
		// Record the miss so stale votes age out of the window.
		e.stabilizer.Update(0, 0)
		return &Outcome{Kind: OutcomeNoMatch}, nil
	}

	e.stabilizer.Update(match.StudentID, match.Similarity)

	confirmation, confirmed := e.stabilizer.Confirmed()
	if !confirmed {
		progress := e.stabilizer.Progress(match.StudentID)
		return &Outcome{
			Kind:       OutcomePending,
			StudentID:  match.StudentID,
			Name:       match.Name,
			Similarity: match.Similarity,
			Progress:   &progress,
		}, nil
	}

	resolution, err := e.resolver.ResolveSighting(ctx, session, confirmation.StudentID, confirmation.Confidence)
	if err != nil {
		return nil, fmt.Errorf("resolve sighting: %w", err)
	}
	e.stabilizer.MarkConfirmed(confirmation.StudentID)

	name := match.Name
	if confirmation.StudentID != match.StudentID {
		name = galleryName(gallery, confirmation.StudentID)
	}

	return &Outcome{
		Kind:       OutcomeConfirmed,
		StudentID:  confirmation.StudentID,
		Name:       name,
		Similarity: confirmation.Confidence,
		Resolution: resolution,
	}, nil
}

func galleryName(gallery []database.GalleryEntry, studentID int64) string {
	for _, entry := range gallery {
		if entry.StudentID == studentID {
			return entry.Name
		}
	}
	return ""
}

// ResetForNewSession clears the observation window and cooldowns; called
// when a fresh class starts so votes and suppression from the previous
// session cannot leak in.
func (e *Engine) ResetForNewSession() {
	e.stabilizer.ClearWindow()
	e.stabilizer.ResetCooldowns()
}
