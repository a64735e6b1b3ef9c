package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attend/internal/database"
)

// CoursesHandler handles course and timetable endpoints.
type CoursesHandler struct {
	courses  database.CourseStore
	students database.StudentStore
}

// NewCoursesHandler creates a new courses handler.
func NewCoursesHandler(courses database.CourseStore, students database.StudentStore) *CoursesHandler {
	return &CoursesHandler{courses: courses, students: students}
}

type courseRequest struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Instructor string `json:"instructor"`
}

type courseResponse struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Instructor string `json:"instructor"`
	CreatedAt  string `json:"created_at"`
}

func toCourseResponse(c *database.Course) courseResponse {
	return courseResponse{
		ID:         c.ID,
		Code:       c.Code,
		Name:       c.Name,
		Instructor: c.Instructor,
		CreatedAt:  c.CreatedAt.Format(timeFormat),
	}
}

// Create adds a course.
func (h *CoursesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Code == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "code and name are required")
		return
	}

	course := &database.Course{
		Code:       req.Code,
		Name:       req.Name,
		Instructor: req.Instructor,
	}
	if _, err := h.courses.CreateCourse(r.Context(), course); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create course")
		return
	}
	respondJSON(w, http.StatusCreated, toCourseResponse(course))
}

// List returns all courses.
func (h *CoursesHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListCourses(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	result := make([]courseResponse, len(courses))
	for i := range courses {
		result[i] = toCourseResponse(&courses[i])
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns a single course.
func (h *CoursesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	course, err := h.courses.GetCourse(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "course not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get course")
		return
	}
	respondJSON(w, http.StatusOK, toCourseResponse(course))
}

type enrollRequest struct {
	StudentID int64 `json:"student_id"`
}

// EnrollStudent adds a student to a course roster. Idempotent.
func (h *CoursesHandler) EnrollStudent(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID <= 0 {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if _, err := h.courses.GetCourse(r.Context(), courseID); errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "course not found")
		return
	}
	if _, err := h.students.GetStudent(r.Context(), req.StudentID); errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}

	if err := h.courses.EnrollStudent(r.Context(), courseID, req.StudentID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to enroll student")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"course_id": courseID, "student_id": req.StudentID})
}

// UnenrollStudent removes a student from a course roster.
func (h *CoursesHandler) UnenrollStudent(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	studentID, ok := urlParamInt64(w, r, "studentID")
	if !ok {
		return
	}
	if err := h.courses.UnenrollStudent(r.Context(), courseID, studentID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to unenroll student")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"course_id": courseID, "student_id": studentID})
}

// ListEnrolledStudents returns the active roster of a course.
func (h *CoursesHandler) ListEnrolledStudents(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	students, err := h.courses.ListEnrolledStudents(r.Context(), courseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list enrolled students")
		return
	}

	result := make([]map[string]any, len(students))
	for i, s := range students {
		result[i] = map[string]any{
			"id":         s.ID,
			"name":       s.Name,
			"student_no": s.StudentNo,
		}
	}
	respondJSON(w, http.StatusOK, result)
}

type slotRequest struct {
	DayOfWeek            int `json:"day_of_week"` // 0 = Sunday, per time.Weekday
	StartMinute          int `json:"start_minute"`
	EndMinute            int `json:"end_minute"`
	LateThresholdMinutes int `json:"late_threshold_minutes"`
}

type slotResponse struct {
	ID                   int64 `json:"id"`
	CourseID             int64 `json:"course_id"`
	DayOfWeek            int   `json:"day_of_week"`
	StartMinute          int   `json:"start_minute"`
	EndMinute            int   `json:"end_minute"`
	LateThresholdMinutes int   `json:"late_threshold_minutes"`
	Active               bool  `json:"active"`
}

func toSlotResponse(ts *database.TimeSlot) slotResponse {
	return slotResponse{
		ID:                   ts.ID,
		CourseID:             ts.CourseID,
		DayOfWeek:            int(ts.DayOfWeek),
		StartMinute:          ts.StartMinute,
		EndMinute:            ts.EndMinute,
		LateThresholdMinutes: ts.LateThresholdMinutes,
		Active:               ts.Active,
	}
}

// CreateSlot adds a weekly timetable slot to a course. The scheduler
// auto-creates a session whenever an active slot's window opens.
func (h *CoursesHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		respondError(w, http.StatusBadRequest, "day_of_week must be 0-6")
		return
	}
	if req.StartMinute < 0 || req.EndMinute > 24*60 || req.EndMinute <= req.StartMinute {
		respondError(w, http.StatusBadRequest, "invalid slot window")
		return
	}

	if _, err := h.courses.GetCourse(r.Context(), courseID); errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "course not found")
		return
	}

	slot := &database.TimeSlot{
		CourseID:             courseID,
		DayOfWeek:            time.Weekday(req.DayOfWeek),
		StartMinute:          req.StartMinute,
		EndMinute:            req.EndMinute,
		LateThresholdMinutes: req.LateThresholdMinutes,
		Active:               true,
	}
	if _, err := h.courses.CreateTimeSlot(r.Context(), slot); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create time slot")
		return
	}
	respondJSON(w, http.StatusCreated, toSlotResponse(slot))
}

// ListSlots returns a course's timetable slots.
func (h *CoursesHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	slots, err := h.courses.ListTimeSlots(r.Context(), courseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list time slots")
		return
	}
	result := make([]slotResponse, len(slots))
	for i := range slots {
		result[i] = toSlotResponse(&slots[i])
	}
	respondJSON(w, http.StatusOK, result)
}

// DeactivateSlot stops the scheduler from creating sessions for a slot.
func (h *CoursesHandler) DeactivateSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "slotID")
	if !ok {
		return
	}
	if err := h.courses.DeactivateTimeSlot(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "time slot not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to deactivate time slot")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}
