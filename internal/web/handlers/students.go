package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/kozaktomas/face-attend/internal/constants"
	"github.com/kozaktomas/face-attend/internal/database"
	"github.com/kozaktomas/face-attend/internal/enrollment"
	"github.com/kozaktomas/face-attend/internal/names"
)

// Enroller runs the enrollment pipeline for a student.
type Enroller interface {
	Enroll(ctx context.Context, studentID int64, frames [][]byte) (*enrollment.Result, error)
}

// StudentsHandler handles student management endpoints.
type StudentsHandler struct {
	students database.StudentStore
	enroller Enroller
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(students database.StudentStore, enroller Enroller) *StudentsHandler {
	return &StudentsHandler{students: students, enroller: enroller}
}

type studentRequest struct {
	Name       string `json:"name"`
	StudentNo  string `json:"student_no"`
	Department string `json:"department"`
	Email      string `json:"email"`
}

type studentResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	StudentNo  string `json:"student_no"`
	Department string `json:"department"`
	Email      string `json:"email"`
	Active     bool   `json:"active"`
	Templates  int    `json:"templates"`
	CreatedAt  string `json:"created_at"`

	// PossibleDuplicateOf is set on creation when another active student
	// has the same normalized name. Advisory, not an error.
	PossibleDuplicateOf int64 `json:"possible_duplicate_of,omitempty"`
}

func (h *StudentsHandler) toResponse(ctx context.Context, s *database.Student) studentResponse {
	count, err := h.students.CountEmbeddings(ctx, s.ID)
	if err != nil {
		count = 0
	}
	return studentResponse{
		ID:         s.ID,
		Name:       s.Name,
		StudentNo:  s.StudentNo,
		Department: s.Department,
		Email:      s.Email,
		Active:     s.Active,
		Templates:  count,
		CreatedAt:  s.CreatedAt.Format(timeFormat),
	}
}

// Create registers a new student. The face templates come later through the
// enroll endpoint.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" || req.StudentNo == "" {
		respondError(w, http.StatusBadRequest, "name and student_no are required")
		return
	}

	if _, err := h.students.GetStudentByNo(r.Context(), req.StudentNo); err == nil {
		respondError(w, http.StatusConflict, fmt.Sprintf("student number %s already registered", req.StudentNo))
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "failed to check student number")
		return
	}

	student := &database.Student{
		Name:       req.Name,
		StudentNo:  req.StudentNo,
		Department: req.Department,
		Email:      req.Email,
		Active:     true,
	}
	if _, err := h.students.CreateStudent(r.Context(), student); err != nil {
		log.Printf("failed to create student %s: %v", sanitizeForLog(req.StudentNo), err)
		respondError(w, http.StatusInternalServerError, "failed to create student")
		return
	}

	resp := h.toResponse(r.Context(), student)
	resp.PossibleDuplicateOf = h.findNameDuplicate(r.Context(), student)
	respondJSON(w, http.StatusCreated, resp)
}

// findNameDuplicate looks for another active student whose name matches
// after normalization. Roster imports and manual registration spell names
// differently often enough that this is only a warning.
func (h *StudentsHandler) findNameDuplicate(ctx context.Context, student *database.Student) int64 {
	others, err := h.students.ListStudents(ctx, true)
	if err != nil {
		return 0
	}
	for _, other := range others {
		if other.ID != student.ID && names.Equal(other.Name, student.Name) {
			return other.ID
		}
	}
	return 0
}

// List returns all students; ?active=true filters to active ones.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	students, err := h.students.ListStudents(r.Context(), activeOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	result := make([]studentResponse, len(students))
	for i := range students {
		result[i] = h.toResponse(r.Context(), &students[i])
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns a single student.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	student, err := h.students.GetStudent(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get student")
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(r.Context(), student))
}

// Update changes a student's descriptive fields. Student number and active
// flag are not editable here.
func (h *StudentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	var req studentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	student, err := h.students.GetStudent(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get student")
		return
	}

	if req.Name != "" {
		student.Name = req.Name
	}
	if req.Department != "" {
		student.Department = req.Department
	}
	if req.Email != "" {
		student.Email = req.Email
	}
	if err := h.students.UpdateStudent(r.Context(), student); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update student")
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(r.Context(), student))
}

// Deactivate soft-deletes a student: they drop out of the recognition
// gallery while historical attendance stays intact.
func (h *StudentsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	if err := h.students.DeactivateStudent(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "student not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to deactivate student")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

// Enroll accepts a multipart batch of frames (field "frames", repeated) and
// runs the enrollment pipeline for the student.
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(constants.MaxEnrollmentUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	fileHeaders := r.MultipartForm.File["frames"]
	if len(fileHeaders) == 0 {
		respondError(w, http.StatusBadRequest, "no frames provided")
		return
	}
	if len(fileHeaders) > constants.MaxEnrollmentFrames {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("too many frames, maximum is %d", constants.MaxEnrollmentFrames))
		return
	}

	frames := make([][]byte, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		file, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to open frame "+sanitizeForLog(fh.Filename))
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read frame "+sanitizeForLog(fh.Filename))
			return
		}
		frames = append(frames, data)
	}

	result, err := h.enroller.Enroll(r.Context(), id, frames)
	if err != nil {
		var notEnough *enrollment.NotEnoughFramesError
		switch {
		case errors.As(err, &notEnough):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":     err.Error(),
				"qualified": notEnough.Qualified,
				"required":  notEnough.Required,
				"rejected":  notEnough.Rejections,
			})
		case errors.Is(err, enrollment.ErrDuplicateIdentity):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "student not found")
		default:
			log.Printf("enrollment failed for student %d: %v", id, err)
			respondError(w, http.StatusInternalServerError, "enrollment failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}
