package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attend/internal/attendance"
	"github.com/kozaktomas/face-attend/internal/database"
	"github.com/kozaktomas/face-attend/internal/session"
)

// SessionsHandler handles session lifecycle and attendance endpoints.
type SessionsHandler struct {
	svc      *session.Service
	sessions database.SessionStore
	records  database.AttendanceStore
	audit    database.AuditLog
	resolver *attendance.Resolver

	// onActivate runs after a session becomes ACTIVE through this API,
	// resetting the recognition window so votes from the previous class
	// cannot leak in.
	onActivate func()
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(svc *session.Service, sessions database.SessionStore, records database.AttendanceStore, audit database.AuditLog, resolver *attendance.Resolver, onActivate func()) *SessionsHandler {
	if onActivate == nil {
		onActivate = func() {}
	}
	return &SessionsHandler{
		svc:        svc,
		sessions:   sessions,
		records:    records,
		audit:      audit,
		resolver:   resolver,
		onActivate: onActivate,
	}
}

type sessionRequest struct {
	CourseID             int64  `json:"course_id"`
	StartsAt             string `json:"starts_at"`
	EndsAt               string `json:"ends_at"`
	LateThresholdMinutes int    `json:"late_threshold_minutes"`
}

type sessionResponse struct {
	ID                   int64  `json:"id"`
	CourseID             int64  `json:"course_id"`
	TimeSlotID           *int64 `json:"time_slot_id,omitempty"`
	StartsAt             string `json:"starts_at"`
	EndsAt               string `json:"ends_at"`
	LateThresholdMinutes int    `json:"late_threshold_minutes"`
	Status               string `json:"status"`
	AutoCreated          bool   `json:"auto_created"`
	FinalizedAt          string `json:"finalized_at,omitempty"`
}

func toSessionResponse(s *database.Session) sessionResponse {
	return sessionResponse{
		ID:                   s.ID,
		CourseID:             s.CourseID,
		TimeSlotID:           s.TimeSlotID,
		StartsAt:             s.StartsAt.Format(timeFormat),
		EndsAt:               s.EndsAt.Format(timeFormat),
		LateThresholdMinutes: s.LateThresholdMinutes,
		Status:               string(s.Status),
		AutoCreated:          s.AutoCreated,
		FinalizedAt:          formatTime(s.FinalizedAt),
	}
}

// Create adds a session, applying the overlap rules.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	startsAt, err := time.Parse(timeFormat, req.StartsAt)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid starts_at")
		return
	}
	endsAt, err := time.Parse(timeFormat, req.EndsAt)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ends_at")
		return
	}

	s, err := h.svc.Create(r.Context(), req.CourseID, startsAt, endsAt, req.LateThresholdMinutes)
	switch {
	case errors.Is(err, session.ErrSessionConflict):
		respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "course not found")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.Status == database.SessionActive {
		h.onActivate()
	}
	respondJSON(w, http.StatusCreated, toSessionResponse(s))
}

// List returns sessions, optionally filtered by ?status= and ?date=YYYY-MM-DD.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := database.SessionFilter{
		Status: database.SessionStatus(r.URL.Query().Get("status")),
	}
	if d := r.URL.Query().Get("date"); d != "" {
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		filter.Date = &date
	}

	sessions, err := h.sessions.ListSessions(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	result := make([]sessionResponse, len(sessions))
	for i := range sessions {
		result[i] = toSessionResponse(&sessions[i])
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns a single session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	s, err := h.sessions.GetSession(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(s))
}

// Active returns the currently ACTIVE session, 404 when there is none.
func (h *SessionsHandler) Active(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.ActiveSession(r.Context())
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no active session")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get active session")
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(s))
}

func (h *SessionsHandler) transition(w http.ResponseWriter, r *http.Request, do func(int64) (*database.Session, error)) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	s, err := do(id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		log.Printf("session transition failed: %v", err)
		respondError(w, http.StatusInternalServerError, "session transition failed")
	default:
		respondJSON(w, http.StatusOK, toSessionResponse(s))
	}
}

// Activate manually starts a scheduled session.
func (h *SessionsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64) (*database.Session, error) {
		s, err := h.svc.Activate(r.Context(), id)
		if err == nil && s.Status == database.SessionActive {
			h.onActivate()
		}
		return s, err
	})
}

// End manually completes an active session.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64) (*database.Session, error) {
		return h.svc.End(r.Context(), id)
	})
}

// Cancel cancels a non-terminal session.
func (h *SessionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64) (*database.Session, error) {
		return h.svc.Cancel(r.Context(), id)
	})
}

type attendanceResponse struct {
	StudentID    int64   `json:"student_id"`
	Status       string  `json:"status"`
	Method       string  `json:"method"`
	CheckInTime  string  `json:"check_in_time,omitempty"`
	LastSeenTime string  `json:"last_seen_time,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// Attendance lists the attendance records of a session.
func (h *SessionsHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	records, err := h.records.ListBySession(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	result := make([]attendanceResponse, len(records))
	for i, rec := range records {
		result[i] = attendanceResponse{
			StudentID:    rec.StudentID,
			Status:       string(rec.Status),
			Method:       string(rec.Method),
			CheckInTime:  formatTime(rec.CheckInTime),
			LastSeenTime: formatTime(rec.LastSeenTime),
			Confidence:   rec.Confidence,
			Notes:        rec.Notes,
		}
	}
	respondJSON(w, http.StatusOK, result)
}

type auditResponse struct {
	ID         string  `json:"id"`
	StudentID  int64   `json:"student_id"`
	Action     string  `json:"action"`
	Suspicious bool    `json:"suspicious"`
	Similarity float64 `json:"similarity,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}

// Audit lists the audit trail of a session.
func (h *SessionsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	events, err := h.audit.ListAuditBySession(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}

	result := make([]auditResponse, len(events))
	for i, e := range events {
		result[i] = auditResponse{
			ID:         e.ID.String(),
			StudentID:  e.StudentID,
			Action:     string(e.Action),
			Suspicious: e.Suspicious,
			Similarity: e.Similarity,
			OccurredAt: e.OccurredAt.Format(timeFormat),
		}
	}
	respondJSON(w, http.StatusOK, result)
}

type manualMarkRequest struct {
	StudentID int64  `json:"student_id"`
	Status    string `json:"status"` // empty means PRESENT or LATE by time
	Notes     string `json:"notes"`
}

// MarkManual records attendance on behalf of an operator.
func (h *SessionsHandler) MarkManual(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(w, r, "id")
	if !ok {
		return
	}
	var req manualMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID <= 0 {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	status := database.AttendanceStatus(req.Status)
	switch status {
	case "", database.AttendancePresent, database.AttendanceLate, database.AttendanceAbsent:
	default:
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	s, err := h.sessions.GetSession(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	if s.Status.Terminal() && s.Status != database.SessionCompleted {
		respondError(w, http.StatusConflict, "cannot mark attendance on a cancelled session")
		return
	}

	record, err := h.resolver.MarkManual(r.Context(), s, req.StudentID, status, req.Notes)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateAttendance) {
			respondError(w, http.StatusConflict, "attendance already recorded")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, attendanceResponse{
		StudentID:    record.StudentID,
		Status:       string(record.Status),
		Method:       string(record.Method),
		CheckInTime:  formatTime(record.CheckInTime),
		LastSeenTime: formatTime(record.LastSeenTime),
		Notes:        record.Notes,
	})
}
