package checkin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatepass/server/internal/credential"
	"github.com/gatepass/server/internal/model"
	"github.com/gatepass/server/internal/repo"
)

// Verified is an authenticated credential resolved to a live attendee record.
type Verified struct {
	Attendee model.Attendee
	Identity model.AttendeeIdentity
	Format   credential.Format
}

// Verifier turns raw scanned text into a resolved attendee identity.
type Verifier struct {
	codec       *credential.Codec
	attendees   repo.AttendeeRepo
	credentials repo.CredentialRepo
	logger      *slog.Logger
}

// NewVerifier creates a verifier. The codec must be keyed with the same secret used at issuance.
func NewVerifier(codec *credential.Codec, attendees repo.AttendeeRepo, credentials repo.CredentialRepo, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		codec:       codec,
		attendees:   attendees,
		credentials: credentials,
		logger:      logger,
	}
}

// Verify decodes raw, checks the integrity tag and resolves the attendee by id and
// registration code. Errors are ErrMalformed, ErrTampered (incl. ErrSuperseded),
// ErrUnknownAttendee, or a wrapped storage error.
func (v *Verifier) Verify(ctx context.Context, raw string) (Verified, error) {
	decoded, err := v.codec.ParseScannedText(raw)
	if err != nil {
		v.logger.Info("credential rejected", "reason", "undecodable", "length", len(raw))
		return Verified{}, ErrMalformed
	}

	claims := decoded.Claims
	if !claims.Complete() {
		v.logger.Info("credential rejected", "reason", "missing_claims", "format", decoded.Format)
		return Verified{}, ErrMalformed
	}

	// Legacy credentials get exactly the same check; there is no leniency for old formats.
	if !v.codec.TagMatches(claims) {
		v.logger.Warn("credential integrity check failed",
			"event", "credential_tampered",
			"format", decoded.Format,
			"attendee_id", claims.AttendeeID,
			"registration_code", credential.MaskCode(claims.RegistrationCode),
		)
		return Verified{}, ErrTampered
	}

	attendee, err := v.attendees.GetByIDAndCode(ctx, claims.AttendeeID, claims.RegistrationCode)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			v.logger.Info("credential rejected", "reason", "unknown_attendee", "attendee_id", claims.AttendeeID)
			return Verified{}, ErrUnknownAttendee
		}
		return Verified{}, fmt.Errorf("resolve attendee: %w", err)
	}
	if claims.EventID != 0 && claims.EventID != attendee.EventID {
		v.logger.Info("credential rejected", "reason", "event_mismatch", "attendee_id", attendee.ID)
		return Verified{}, ErrUnknownAttendee
	}

	if decoded.Format == credential.FormatSealed {
		if err := v.checkLive(ctx, attendee.ID, decoded.Payload); err != nil {
			return Verified{}, err
		}
	}

	return Verified{
		Attendee: attendee,
		Identity: model.AttendeeIdentity{
			AttendeeID:       attendee.ID,
			RegistrationCode: attendee.RegistrationCode,
			EventID:          attendee.EventID,
			IssuedAt:         time.Unix(claims.Timestamp, 0).UTC(),
		},
		Format: decoded.Format,
	}, nil
}

// checkLive requires a sealed payload to be the attendee's current credential, so a
// reissue invalidates the previous code even when the registration code is unchanged.
func (v *Verifier) checkLive(ctx context.Context, attendeeID int64, payload model.SealedPayload) error {
	live, err := v.credentials.GetByAttendee(ctx, attendeeID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("load credential: %w", err)
	}
	if err != nil || subtle.ConstantTimeCompare([]byte(live.SealedPayload), []byte(payload)) != 1 {
		v.logger.Warn("superseded credential scanned",
			"event", "credential_superseded",
			"attendee_id", attendeeID,
		)
		return ErrSuperseded
	}
	return nil
}
