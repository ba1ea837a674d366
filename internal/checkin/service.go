package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatepass/server/internal/credential"
	"github.com/gatepass/server/internal/model"
	"github.com/gatepass/server/internal/repo"
)

// ScanResult is what a scan did and the attendee state after it.
type ScanResult struct {
	Outcome  Outcome
	Attendee model.Attendee
	Format   credential.Format
}

// Service orchestrates verification and presence transitions. It is the only
// writer of attendee presence and the credential consumed flag.
type Service struct {
	verifier    *Verifier
	attendees   repo.AttendeeRepo
	credentials repo.CredentialRepo
	policy      Policy
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new check-in service
func NewService(
	verifier *Verifier,
	attendees repo.AttendeeRepo,
	credentials repo.CredentialRepo,
	policy Policy,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		verifier:    verifier,
		attendees:   attendees,
		credentials: credentials,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
	}
}

// Scan verifies the raw scanned text and applies the resulting transition on behalf of actorID.
func (s *Service) Scan(ctx context.Context, raw string, actorID int64) (ScanResult, error) {
	verified, err := s.verifier.Verify(ctx, raw)
	if err != nil {
		return ScanResult{}, err
	}

	result, err := s.Apply(ctx, verified.Identity, actorID, s.now().UTC())
	if err != nil {
		return ScanResult{}, err
	}
	result.Format = verified.Format
	return result, nil
}

// Apply runs the presence transition for identity against the attendee's current
// persisted state. The read and the write happen under the attendee's row lock.
func (s *Service) Apply(ctx context.Context, identity model.AttendeeIdentity, actorID int64, now time.Time) (ScanResult, error) {
	var outcome Outcome
	attendee, err := s.attendees.UpdatePresence(ctx, identity.AttendeeID, identity.RegistrationCode,
		func(current model.Attendee) (model.Presence, bool, error) {
			next, oc, changed := Transition(current.Presence, actorID, now, s.policy)
			outcome = oc
			return next, changed, nil
		})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ScanResult{}, ErrUnknownAttendee
		}
		return ScanResult{}, fmt.Errorf("apply scan: %w", err)
	}

	s.logger.Info("scan applied",
		"attendee_id", attendee.ID,
		"event_id", attendee.EventID,
		"outcome", outcome,
		"actor_id", actorID,
	)

	if outcome != OutcomeAlreadyCheckedOut {
		s.markConsumed(ctx, attendee.ID, now)
	}

	return ScanResult{Outcome: outcome, Attendee: attendee}, nil
}

// CheckIn marks the attendee present without a credential scan, on behalf of actorID.
// It never checks out and leaves the credential unconsumed.
func (s *Service) CheckIn(ctx context.Context, attendeeID, actorID int64) (model.Attendee, error) {
	current, err := s.attendees.GetByID(ctx, attendeeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Attendee{}, ErrUnknownAttendee
		}
		return model.Attendee{}, fmt.Errorf("load attendee: %w", err)
	}

	now := s.now().UTC()
	attendee, err := s.attendees.UpdatePresence(ctx, attendeeID, current.RegistrationCode,
		func(locked model.Attendee) (model.Presence, bool, error) {
			state := locked.Presence.State()
			if state == model.Present || (state == model.Departed && !s.policy.AllowReentry) {
				return locked.Presence, false, ErrAlreadyCheckedIn
			}
			return checkIn(actorID, now), true, nil
		})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyCheckedIn):
			return model.Attendee{}, err
		case errors.Is(err, repo.ErrNotFound):
			return model.Attendee{}, ErrUnknownAttendee
		}
		return model.Attendee{}, fmt.Errorf("manual check-in: %w", err)
	}

	s.logger.Info("manual check-in",
		"attendee_id", attendee.ID,
		"event_id", attendee.EventID,
		"actor_id", actorID,
	)
	return attendee, nil
}

// markConsumed flags the attendee's credential as used. Failures leave only audit
// metadata behind, so they are logged and not returned.
func (s *Service) markConsumed(ctx context.Context, attendeeID int64, now time.Time) {
	cred, err := s.credentials.GetByAttendee(ctx, attendeeID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.logger.Error("load credential for consumption", "attendee_id", attendeeID, "error", err)
		}
		return
	}
	if cred.Consumed {
		return
	}
	if err := s.credentials.MarkConsumed(ctx, cred.ID, now); err != nil {
		s.logger.Error("mark credential consumed", "attendee_id", attendeeID, "credential_id", cred.ID, "error", err)
	}
}
