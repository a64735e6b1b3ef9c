package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kozaktomas/face-attend/internal/database"
	"github.com/kozaktomas/face-attend/internal/extractor"
	"github.com/kozaktomas/face-attend/internal/recognition"
)

// ErrDuplicateIdentity is returned when an enrollment template is nearly
// identical to one belonging to a different student. Usually someone trying
// to enroll twice under a second account.
var ErrDuplicateIdentity = errors.New("face already enrolled under a different student")

// FrameExtractor detects faces and produces embeddings for a single frame.
type FrameExtractor interface {
	DetectAndEmbed(ctx context.Context, imageData []byte) (*extractor.Response, error)
}

// Result summarizes one enrollment run.
type Result struct {
	StudentID int64       `json:"student_id"`
	Added     int         `json:"added"`
	Rejected  []Rejection `json:"rejected,omitempty"`
	Model     string      `json:"model,omitempty"`
}

// Service runs the full enrollment pipeline: extract faces from every
// frame, select the best by quality, guard against duplicate identities,
// and persist the surviving templates.
type Service struct {
	extractor    FrameExtractor
	students     database.StudentStore
	gallery      database.GalleryReader
	selector     *Selector
	duplicateSim float64
	maxFrameSize int
}

// NewService creates an enrollment service.
func NewService(ex FrameExtractor, students database.StudentStore, gallery database.GalleryReader, selector *Selector, duplicateSim float64, maxFrameSize int) *Service {
	return &Service{
		extractor:    ex,
		students:     students,
		gallery:      gallery,
		selector:     selector,
		duplicateSim: duplicateSim,
		maxFrameSize: maxFrameSize,
	}
}

// Enroll processes a batch of frames for the given student. The batch is
// all-or-nothing: if too few frames pass the quality gates, or any selected
// template collides with another student's, nothing is persisted.
// Re-enrolling replaces the student's existing templates.
func (s *Service) Enroll(ctx context.Context, studentID int64, frames [][]byte) (*Result, error) {
	student, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	if !student.Active {
		return nil, fmt.Errorf("student %d is deactivated", studentID)
	}

	detected := make([][]extractor.Face, len(frames))
	model := ""
	for i, frame := range frames {
		prepared, err := extractor.PrepareFrame(frame, s.maxFrameSize)
		if err != nil {
			// Undecodable upload counts as a no-face frame.
			detected[i] = nil
			continue
		}
		resp, err := s.extractor.DetectAndEmbed(ctx, prepared)
		if err != nil {
			return nil, fmt.Errorf("extract frame %d: %w", i, err)
		}
		detected[i] = resp.Faces
		if resp.Model != "" {
			model = resp.Model
		}
	}

	candidates, rejections, err := s.selector.Select(detected)
	if err != nil {
		return nil, err
	}

	if err := s.checkDuplicateIdentity(ctx, studentID, candidates); err != nil {
		return nil, err
	}

	// Replace, not append: a fresh capture round supersedes old templates.
	if err := s.students.DeleteEmbeddings(ctx, studentID); err != nil {
		return nil, fmt.Errorf("clear old templates: %w", err)
	}

	for _, c := range candidates {
		e := &database.StudentEmbedding{
			StudentID: studentID,
			Embedding: c.Face.Embedding,
			Quality:   c.Score,
			Dim:       c.Face.Dim,
			Model:     model,
		}
		if _, err := s.students.AddEmbedding(ctx, e); err != nil {
			return nil, fmt.Errorf("store template: %w", err)
		}
	}

	log.Printf("enrolled student %d: %d templates from %d frames (%d rejected)",
		studentID, len(candidates), len(frames), len(rejections))

	return &Result{
		StudentID: studentID,
		Added:     len(candidates),
		Rejected:  rejections,
		Model:     model,
	}, nil
}

// checkDuplicateIdentity searches the existing gallery for a template from
// a different student that is suspiciously close to any of the new ones.
func (s *Service) checkDuplicateIdentity(ctx context.Context, studentID int64, candidates []Candidate) error {
	entries, err := s.gallery.Gallery(ctx)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}

	index := database.NewEmbeddingIndex()
	var templates []database.StudentEmbedding
	var nodeID int64
	for _, entry := range entries {
		if entry.StudentID == studentID {
			continue
		}
		for _, emb := range entry.Embeddings {
			nodeID++
			templates = append(templates, database.StudentEmbedding{
				ID:        nodeID,
				StudentID: entry.StudentID,
				Embedding: emb,
			})
		}
	}
	if len(templates) == 0 {
		return nil
	}
	if err := index.Build(templates); err != nil {
		return fmt.Errorf("build template index: %w", err)
	}

	for _, c := range candidates {
		ids, _, err := index.Search(c.Face.Embedding, 1)
		if err != nil || len(ids) == 0 {
			continue
		}
		sim := recognition.Similarity(c.Face.Embedding, index.Get(ids[0]).Embedding)
		if sim >= s.duplicateSim {
			owner := index.Get(ids[0]).StudentID
			return fmt.Errorf("%w: matches student %d (similarity %.3f)", ErrDuplicateIdentity, owner, sim)
		}
	}
	return nil
}
