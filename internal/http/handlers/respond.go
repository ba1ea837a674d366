package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gatepass/server/internal/model"
	"github.com/go-chi/chi/v5"
)

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// respondJSON writes v as the JSON body with the given status
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}

// attendeeIDParam parses the {id} route parameter.
func attendeeIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// attendeeResponse is the attendee object in API responses
type attendeeResponse struct {
	ID               int64      `json:"id"`
	EventID          int64      `json:"event_id"`
	RegistrationCode string     `json:"registration_code"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	State            string     `json:"state"`
	CheckedInAt      *time.Time `json:"checked_in_at"`
	CheckedInBy      *int64     `json:"checked_in_by"`
	CheckedOutAt     *time.Time `json:"checked_out_at"`
	CheckedOutBy     *int64     `json:"checked_out_by"`
}

func newAttendeeResponse(a model.Attendee) attendeeResponse {
	return attendeeResponse{
		ID:               a.ID,
		EventID:          a.EventID,
		RegistrationCode: a.RegistrationCode,
		Name:             a.Name,
		Email:            a.Email,
		State:            string(a.Presence.State()),
		CheckedInAt:      a.Presence.CheckedInAt,
		CheckedInBy:      a.Presence.CheckedInBy,
		CheckedOutAt:     a.Presence.CheckedOutAt,
		CheckedOutBy:     a.Presence.CheckedOutBy,
	}
}
