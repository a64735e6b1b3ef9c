// Package enrollment builds a student's template set from a batch of
// enrollment frames: each frame is gated on face quality, scored, and the
// best embeddings are kept.
package enrollment

import (
	"fmt"
	"math"
	"sort"

	"github.com/kozaktomas/face-attend/internal/config"
	"github.com/kozaktomas/face-attend/internal/extractor"
)

// Rejection reasons reported per frame. The caller surfaces them so an
// operator can see why a capture round came up short.
const (
	RejectNoFace        = "no_face"
	RejectMultipleFaces = "multiple_faces"
	RejectTooSmall      = "face_too_small"
	RejectBlurry        = "blurry"
	RejectPose          = "extreme_pose"
)

// Candidate is a frame that passed every quality gate, with its composite
// score. Higher is better.
type Candidate struct {
	FrameIndex int
	Face       extractor.Face
	Score      float64
}

// Rejection records why a frame was dropped.
type Rejection struct {
	FrameIndex int    `json:"frame_index"`
	Reason     string `json:"reason"`
}

// NotEnoughFramesError fails the whole batch when too few frames survive
// the gates. Nothing is persisted in that case; the operator retakes the
// full set rather than topping up a bad one.
type NotEnoughFramesError struct {
	Qualified  int
	Required   int
	Rejections []Rejection
}

func (e *NotEnoughFramesError) Error() string {
	return fmt.Sprintf("only %d of the required %d enrollment frames passed quality gates", e.Qualified, e.Required)
}

// Selector applies the quality gates and composite scoring to enrollment
// frames.
type Selector struct {
	cfg       config.QualityConfig
	minFrames int
	maxKeep   int
}

// NewSelector creates a selector from the quality thresholds.
func NewSelector(cfg config.QualityConfig, minFrames, maxKeep int) *Selector {
	return &Selector{
		cfg:       cfg,
		minFrames: minFrames,
		maxKeep:   maxKeep,
	}
}

// Select gates and scores one batch of frames (each entry holds the faces
// detected in one frame) and returns the best candidates, capped at the
// per-student template limit, sorted by descending score. When fewer than
// the minimum number of frames qualify it returns NotEnoughFramesError and
// no candidates.
func (s *Selector) Select(frames [][]extractor.Face) ([]Candidate, []Rejection, error) {
	var candidates []Candidate
	var rejections []Rejection

	for i, faces := range frames {
		switch {
		case len(faces) == 0:
			rejections = append(rejections, Rejection{FrameIndex: i, Reason: RejectNoFace})
			continue
		case len(faces) > 1:
			// Enrollment frames must contain exactly the enrollee.
			rejections = append(rejections, Rejection{FrameIndex: i, Reason: RejectMultipleFaces})
			continue
		}

		face := faces[0]
		if reason := s.gate(&face); reason != "" {
			rejections = append(rejections, Rejection{FrameIndex: i, Reason: reason})
			continue
		}

		candidates = append(candidates, Candidate{
			FrameIndex: i,
			Face:       face,
			Score:      s.score(&face),
		})
	}

	if len(candidates) < s.minFrames {
		return nil, rejections, &NotEnoughFramesError{
			Qualified:  len(candidates),
			Required:   s.minFrames,
			Rejections: rejections,
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})
	if len(candidates) > s.maxKeep {
		candidates = candidates[:s.maxKeep]
	}

	return candidates, rejections, nil
}

// gate returns a rejection reason, or "" when the face passes all gates.
func (s *Selector) gate(f *extractor.Face) string {
	if f.Width() < float64(s.cfg.MinFaceSize) || f.Height() < float64(s.cfg.MinFaceSize) {
		return RejectTooSmall
	}
	if f.Sharpness < s.cfg.SharpnessMin {
		return RejectBlurry
	}
	if math.Abs(f.Yaw) > s.cfg.YawMaxDegrees ||
		math.Abs(f.Pitch) > s.cfg.PitchMaxDegrees ||
		math.Abs(f.Roll) > s.cfg.RollMaxDegrees {
		return RejectPose
	}
	return ""
}

// score computes the composite quality score in [0,1]: detector confidence,
// normalized sharpness, and pose centrality (1.0 when the face is frontal,
// falling linearly toward the gate limits).
func (s *Selector) score(f *extractor.Face) float64 {
	sharpness := f.Sharpness / s.cfg.SharpnessNorm
	if sharpness > 1 {
		sharpness = 1
	}

	pose := (poseCentrality(f.Yaw, s.cfg.YawMaxDegrees) +
		poseCentrality(f.Pitch, s.cfg.PitchMaxDegrees) +
		poseCentrality(f.Roll, s.cfg.RollMaxDegrees)) / 3

	return f.DetScore*s.cfg.WeightDetScore +
		sharpness*s.cfg.WeightSharpness +
		pose*s.cfg.WeightPose
}

func poseCentrality(angle, limit float64) float64 {
	if limit <= 0 {
		return 1
	}
	c := 1 - math.Abs(angle)/limit
	if c < 0 {
		return 0
	}
	return c
}
