package handlers

import (
	"errors"
	"net/http"

	"github.com/kozaktomas/face-attend/internal/database"
)

// StatusHandler serves the kiosk dashboard overview: the active session and
// its live attendance tallies.
type StatusHandler struct {
	sessions database.SessionStore
	records  database.AttendanceStore
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(sessions database.SessionStore, records database.AttendanceStore) *StatusHandler {
	return &StatusHandler{sessions: sessions, records: records}
}

type statusResponse struct {
	Session *sessionResponse `json:"session"`
	Counts  map[string]int   `json:"counts,omitempty"`
}

// Get returns the active session with attendance counts grouped by status,
// or a null session when no class is running.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.ActiveSession(r.Context())
	if errors.Is(err, database.ErrNotFound) {
		respondJSON(w, http.StatusOK, statusResponse{})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get active session")
		return
	}

	records, err := h.records.ListBySession(r.Context(), s.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}

	counts := make(map[string]int)
	for _, rec := range records {
		counts[string(rec.Status)]++
	}

	resp := toSessionResponse(s)
	respondJSON(w, http.StatusOK, statusResponse{Session: &resp, Counts: counts})
}
