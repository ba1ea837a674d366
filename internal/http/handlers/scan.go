package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gatepass/server/internal/checkin"
	"github.com/gatepass/server/internal/credential"
	"github.com/gatepass/server/internal/middleware"
)

const maxScanImageBytes = 8 << 20

// ScanHandler handles check-in scans from staff devices
type ScanHandler struct {
	service *checkin.Service
	logger  *slog.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(service *checkin.Service, logger *slog.Logger) *ScanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanHandler{service: service, logger: logger}
}

// scanRequest is the request body for POST /scan
type scanRequest struct {
	QRData string `json:"qr_data"`
}

// scanResponse is the JSON response for a successful scan
type scanResponse struct {
	Outcome  string           `json:"outcome"`
	Message  string           `json:"message"`
	Format   string           `json:"format"`
	Attendee attendeeResponse `json:"attendee"`
}

var outcomeMessages = map[checkin.Outcome]string{
	checkin.OutcomeCheckedIn:         "checked in",
	checkin.OutcomeCheckedOut:        "checked out",
	checkin.OutcomeAlreadyCheckedOut: "attendee has already checked out",
}

// HandleScan handles POST /scan. The body is either JSON {"qr_data": "..."} or a
// multipart form with the photo of a code in the "image" field.
func (h *ScanHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetActorID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	raw, status, msg := h.readScan(r)
	if status != 0 {
		respondWithError(w, status, msg)
		return
	}

	result, err := h.service.Scan(r.Context(), raw, actorID)
	if err != nil {
		h.respondScanError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, scanResponse{
		Outcome:  string(result.Outcome),
		Message:  outcomeMessages[result.Outcome],
		Format:   string(result.Format),
		Attendee: newAttendeeResponse(result.Attendee),
	})
}

// checkInResponse is the JSON response for a manual check-in
type checkInResponse struct {
	Message  string           `json:"message"`
	Attendee attendeeResponse `json:"attendee"`
}

// HandleCheckIn handles POST /attendees/{id}/checkin, a check-in without a scan
// for attendees who cannot present their code.
func (h *ScanHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetActorID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := attendeeIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid attendee id")
		return
	}

	attendee, err := h.service.CheckIn(r.Context(), id, actorID)
	if err != nil {
		switch {
		case errors.Is(err, checkin.ErrAlreadyCheckedIn):
			respondWithError(w, http.StatusUnprocessableEntity, "attendee already checked in")
		case errors.Is(err, checkin.ErrUnknownAttendee):
			respondWithError(w, http.StatusNotFound, "attendee not found")
		default:
			h.logger.Error("manual check-in failed", "attendee_id", id, "error", err)
			respondWithError(w, http.StatusInternalServerError, "check-in failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, checkInResponse{
		Message:  outcomeMessages[checkin.OutcomeCheckedIn],
		Attendee: newAttendeeResponse(attendee),
	})
}

// readScan extracts the scanned text. A non-zero status means the request was rejected.
func (h *ScanHandler) readScan(r *http.Request) (string, int, string) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(nil, r.Body, maxScanImageBytes)
		if err := r.ParseMultipartForm(maxScanImageBytes); err != nil {
			return "", http.StatusBadRequest, "invalid multipart body"
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return "", http.StatusBadRequest, "image is required"
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", http.StatusBadRequest, "failed to read image"
		}
		text, err := credential.ScanImage(data)
		if err != nil {
			h.logger.Info("no code found in uploaded image", "error", err)
			return "", http.StatusUnprocessableEntity, "no QR code found in image"
		}
		return text, 0, ""
	}

	var req scanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		return "", http.StatusBadRequest, "invalid request body"
	}
	if strings.TrimSpace(req.QRData) == "" {
		return "", http.StatusBadRequest, "qr_data is required"
	}
	return req.QRData, 0, ""
}

func (h *ScanHandler) respondScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkin.ErrMalformed):
		respondWithError(w, http.StatusUnprocessableEntity, "invalid code")
	case errors.Is(err, checkin.ErrSuperseded):
		respondWithError(w, http.StatusUnprocessableEntity, "credential has been replaced")
	case errors.Is(err, checkin.ErrTampered):
		respondWithError(w, http.StatusUnprocessableEntity, "credential failed integrity check")
	case errors.Is(err, checkin.ErrUnknownAttendee):
		respondWithError(w, http.StatusNotFound, "attendee not found")
	default:
		h.logger.Error("scan failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "scan failed")
	}
}
