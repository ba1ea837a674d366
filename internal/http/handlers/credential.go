package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gatepass/server/internal/checkin"
	"github.com/gatepass/server/internal/repo"
	"github.com/gatepass/server/internal/storage"
)

// CredentialHandler handles credential issuance and download
type CredentialHandler struct {
	issuer *checkin.Issuer
	logger *slog.Logger
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(issuer *checkin.Issuer, logger *slog.Logger) *CredentialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialHandler{issuer: issuer, logger: logger}
}

// credentialResponse is the JSON response for issue and reissue
type credentialResponse struct {
	CredentialID     int64     `json:"credential_id"`
	AttendeeID       int64     `json:"attendee_id"`
	RegistrationCode string    `json:"registration_code"`
	QRData           string    `json:"qr_data"`
	ImageKey         string    `json:"image_key"`
	Consumed         bool      `json:"consumed"`
	CreatedAt        time.Time `json:"created_at"`
	Existing         bool      `json:"existing"`
}

// generationFailedResponse is returned when no QR image could be produced
type generationFailedResponse struct {
	Status           string `json:"status"`
	AttendeeID       int64  `json:"attendee_id"`
	RegistrationCode string `json:"registration_code"`
	PlaceholderKey   string `json:"placeholder_key,omitempty"`
}

// credentialInfoResponse is the JSON response for GET /attendees/{id}/credential
type credentialInfoResponse struct {
	CredentialID     int64      `json:"credential_id"`
	AttendeeID       int64      `json:"attendee_id"`
	RegistrationCode string     `json:"registration_code"`
	Consumed         bool       `json:"consumed"`
	ConsumedAt       *time.Time `json:"consumed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	ImageURL         string     `json:"image_url"`
}

// reissueRequest is the optional request body for POST /attendees/{id}/credential/reissue
type reissueRequest struct {
	RotateCode bool `json:"rotate_code"`
}

// HandleIssue handles POST /attendees/{id}/credential
func (h *CredentialHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := attendeeIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid attendee id")
		return
	}

	res, err := h.issuer.Issue(r.Context(), id)
	if err != nil {
		h.respondIssueError(w, res, err)
		return
	}

	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	respondJSON(w, status, newCredentialResponse(res))
}

// HandleReissue handles POST /attendees/{id}/credential/reissue
func (h *CredentialHandler) HandleReissue(w http.ResponseWriter, r *http.Request) {
	id, ok := attendeeIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid attendee id")
		return
	}

	var req reissueRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.issuer.Reissue(r.Context(), id, checkin.ReissueOptions{RotateCode: req.RotateCode})
	if err != nil {
		h.respondIssueError(w, res, err)
		return
	}
	respondJSON(w, http.StatusCreated, newCredentialResponse(res))
}

// HandleInfo handles GET /attendees/{id}/credential
func (h *CredentialHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := attendeeIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid attendee id")
		return
	}

	cred, attendee, err := h.issuer.Credential(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, checkin.ErrUnknownAttendee):
			respondWithError(w, http.StatusNotFound, "attendee not found")
		case errors.Is(err, repo.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "credential not found")
		default:
			h.logger.Error("load credential", "attendee_id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "failed to load credential")
		}
		return
	}

	respondJSON(w, http.StatusOK, credentialInfoResponse{
		CredentialID:     cred.ID,
		AttendeeID:       attendee.ID,
		RegistrationCode: attendee.RegistrationCode,
		Consumed:         cred.Consumed,
		ConsumedAt:       cred.ConsumedAt,
		CreatedAt:        cred.CreatedAt,
		ImageURL:         fmt.Sprintf("/attendees/%d/credential/image", attendee.ID),
	})
}

// HandleImage handles GET /attendees/{id}/credential/image
func (h *CredentialHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	id, ok := attendeeIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid attendee id")
		return
	}

	data, attendee, err := h.issuer.Image(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, checkin.ErrUnknownAttendee):
			respondWithError(w, http.StatusNotFound, "attendee not found")
		case errors.Is(err, repo.ErrNotFound), errors.Is(err, storage.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "credential not found")
		default:
			h.logger.Error("load credential image", "attendee_id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "failed to load credential image")
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+attendee.RegistrationCode+`-qr-code.png"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *CredentialHandler) respondIssueError(w http.ResponseWriter, res checkin.IssueResult, err error) {
	switch {
	case errors.Is(err, checkin.ErrUnknownAttendee):
		respondWithError(w, http.StatusNotFound, "attendee not found")
	case errors.Is(err, checkin.ErrGenerationFailed):
		// Registration stands; the attendee gets a placeholder instead of a scannable code.
		respondJSON(w, http.StatusAccepted, generationFailedResponse{
			Status:           "credential_generation_failed",
			AttendeeID:       res.Identity.AttendeeID,
			RegistrationCode: res.Identity.RegistrationCode,
			PlaceholderKey:   res.PlaceholderKey,
		})
	default:
		h.logger.Error("credential issuance failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "failed to issue credential")
	}
}

func newCredentialResponse(res checkin.IssueResult) credentialResponse {
	return credentialResponse{
		CredentialID:     res.Credential.ID,
		AttendeeID:       res.Credential.AttendeeID,
		RegistrationCode: res.Identity.RegistrationCode,
		QRData:           string(res.Credential.SealedPayload),
		ImageKey:         res.Credential.ImageKey,
		Consumed:         res.Credential.Consumed,
		CreatedAt:        res.Credential.CreatedAt,
		Existing:         res.Existing,
	}
}
