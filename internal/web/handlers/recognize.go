package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attend/internal/constants"
	"github.com/kozaktomas/face-attend/internal/recognition"
)

// Recognizer runs one camera frame through the recognition pipeline.
type Recognizer interface {
	ProcessFrame(ctx context.Context, frame []byte) (*recognition.Outcome, error)
}

// RecognizeHandler handles the kiosk frame endpoint.
type RecognizeHandler struct {
	engine Recognizer
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(engine Recognizer) *RecognizeHandler {
	return &RecognizeHandler{engine: engine}
}

type recognizeResponse struct {
	Outcome    string                `json:"outcome"`
	StudentID  int64                 `json:"student_id,omitempty"`
	Name       string                `json:"name,omitempty"`
	Similarity float64               `json:"similarity,omitempty"`
	Progress   *recognition.Progress `json:"progress,omitempty"`
	Status     string                `json:"status,omitempty"` // attendance status on confirmation
	ReEntry    bool                  `json:"re_entry,omitempty"`
	Intruder   bool                  `json:"intruder,omitempty"`
}

// Recognize accepts one frame (multipart field "frame" or a raw image body)
// and returns the pipeline outcome.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	frame, err := readFrame(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "no frame provided")
		return
	}

	outcome, err := h.engine.ProcessFrame(r.Context(), frame)
	if err != nil {
		log.Printf("frame processing failed: %v", err)
		respondError(w, http.StatusInternalServerError, "frame processing failed")
		return
	}

	resp := recognizeResponse{
		Outcome:    string(outcome.Kind),
		StudentID:  outcome.StudentID,
		Name:       outcome.Name,
		Similarity: outcome.Similarity,
		Progress:   outcome.Progress,
	}
	if outcome.Resolution != nil {
		resp.ReEntry = outcome.Resolution.ReEntry
		resp.Intruder = outcome.Resolution.Intruder
		if outcome.Resolution.Record != nil {
			resp.Status = string(outcome.Resolution.Record.Status)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// readFrame extracts the frame bytes from a multipart form or raw body.
func readFrame(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(constants.MaxFrameUploadSize); err != nil {
			return nil, errors.New("failed to parse multipart form")
		}
		file, _, err := r.FormFile("frame")
		if err != nil {
			return nil, errors.New("frame field is required")
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, constants.MaxFrameUploadSize))
	}
	return io.ReadAll(io.LimitReader(r.Body, constants.MaxFrameUploadSize))
}
