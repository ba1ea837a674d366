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
	"github.com/gatepass/server/internal/storage"
	"github.com/google/uuid"
)

// IssueResult describes the credential an issuance produced or found.
type IssueResult struct {
	Credential model.Credential
	Identity   model.AttendeeIdentity
	// Existing is set when Issue returned a credential that was already live.
	Existing bool
	// PlaceholderKey names the fallback artifact stored when generation failed.
	PlaceholderKey string
}

// ReissueOptions controls credential regeneration.
type ReissueOptions struct {
	// RotateCode assigns the attendee a fresh registration code along with the new credential.
	RotateCode bool
}

// Issuer creates and regenerates attendee credentials.
type Issuer struct {
	codec       *credential.Codec
	attendees   repo.AttendeeRepo
	credentials repo.CredentialRepo
	images      storage.ImageStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewIssuer creates a new credential issuer
func NewIssuer(
	codec *credential.Codec,
	attendees repo.AttendeeRepo,
	credentials repo.CredentialRepo,
	images storage.ImageStore,
	logger *slog.Logger,
) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		codec:       codec,
		attendees:   attendees,
		credentials: credentials,
		images:      images,
		logger:      logger,
		now:         time.Now,
	}
}

// Issue creates the attendee's credential. If one is already live it is returned unchanged.
func (i *Issuer) Issue(ctx context.Context, attendeeID int64) (IssueResult, error) {
	attendee, err := i.loadAttendee(ctx, attendeeID)
	if err != nil {
		return IssueResult{}, err
	}

	if existing, err := i.credentials.GetByAttendee(ctx, attendeeID); err == nil {
		return IssueResult{Credential: existing, Identity: attendee.Identity(existing.CreatedAt), Existing: true}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return IssueResult{}, fmt.Errorf("load credential: %w", err)
	}

	identity := attendee.Identity(i.now().UTC())
	payload, imageKey, err := i.generate(ctx, identity)
	if err != nil {
		return i.fallback(ctx, identity, err)
	}

	cred, err := i.credentials.Put(ctx, attendeeID, payload, imageKey)
	if err != nil {
		i.discardImage(ctx, imageKey)
		if errors.Is(err, repo.ErrCredentialExists) {
			// Lost a race with a concurrent Issue; the winner's credential stands.
			existing, getErr := i.credentials.GetByAttendee(ctx, attendeeID)
			if getErr != nil {
				return IssueResult{}, fmt.Errorf("load credential: %w", getErr)
			}
			return IssueResult{Credential: existing, Identity: attendee.Identity(existing.CreatedAt), Existing: true}, nil
		}
		return IssueResult{}, fmt.Errorf("store credential: %w", err)
	}

	i.logger.Info("credential issued",
		"attendee_id", attendeeID,
		"registration_code", credential.MaskCode(identity.RegistrationCode),
		"credential_id", cred.ID,
	)
	return IssueResult{Credential: cred, Identity: identity}, nil
}

// Reissue replaces the attendee's credential. The previous credential stops verifying
// and its image is deleted.
func (i *Issuer) Reissue(ctx context.Context, attendeeID int64, opts ReissueOptions) (IssueResult, error) {
	attendee, err := i.loadAttendee(ctx, attendeeID)
	if err != nil {
		return IssueResult{}, err
	}

	now := i.now().UTC()
	// A rotated code is only persisted with the new credential, so a failed
	// generation must report the code the attendee still holds.
	persisted := attendee.Identity(now)
	if opts.RotateCode {
		code, err := credential.NewRegistrationCode()
		if err != nil {
			return IssueResult{}, err
		}
		attendee.RegistrationCode = code
	}

	identity := attendee.Identity(now)
	payload, imageKey, err := i.generate(ctx, identity)
	if err != nil {
		return i.fallback(ctx, persisted, err)
	}

	var (
		cred        model.Credential
		oldImageKey string
	)
	if opts.RotateCode {
		cred, oldImageKey, err = i.credentials.ReplaceWithCode(ctx, attendeeID, identity.RegistrationCode, payload, imageKey)
	} else {
		cred, oldImageKey, err = i.credentials.Replace(ctx, attendeeID, payload, imageKey)
	}
	if err != nil {
		i.discardImage(ctx, imageKey)
		if errors.Is(err, repo.ErrNotFound) {
			return IssueResult{}, ErrUnknownAttendee
		}
		return IssueResult{}, fmt.Errorf("replace credential: %w", err)
	}

	if oldImageKey != "" && oldImageKey != imageKey {
		i.discardImage(ctx, oldImageKey)
	}

	i.logger.Info("credential reissued",
		"attendee_id", attendeeID,
		"registration_code", credential.MaskCode(identity.RegistrationCode),
		"rotated_code", opts.RotateCode,
		"credential_id", cred.ID,
	)
	return IssueResult{Credential: cred, Identity: identity}, nil
}

// Credential returns the attendee's live credential record.
func (i *Issuer) Credential(ctx context.Context, attendeeID int64) (model.Credential, model.Attendee, error) {
	attendee, err := i.loadAttendee(ctx, attendeeID)
	if err != nil {
		return model.Credential{}, model.Attendee{}, err
	}
	cred, err := i.credentials.GetByAttendee(ctx, attendeeID)
	if err != nil {
		return model.Credential{}, model.Attendee{}, err
	}
	return cred, attendee, nil
}

// Image returns the stored QR image of the attendee's live credential.
func (i *Issuer) Image(ctx context.Context, attendeeID int64) ([]byte, model.Attendee, error) {
	attendee, err := i.loadAttendee(ctx, attendeeID)
	if err != nil {
		return nil, model.Attendee{}, err
	}
	cred, err := i.credentials.GetByAttendee(ctx, attendeeID)
	if err != nil {
		return nil, model.Attendee{}, err
	}
	data, err := i.images.Get(ctx, cred.ImageKey)
	if err != nil {
		return nil, model.Attendee{}, err
	}
	return data, attendee, nil
}

func (i *Issuer) loadAttendee(ctx context.Context, attendeeID int64) (model.Attendee, error) {
	attendee, err := i.attendees.GetByID(ctx, attendeeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Attendee{}, ErrUnknownAttendee
		}
		return model.Attendee{}, fmt.Errorf("load attendee: %w", err)
	}
	return attendee, nil
}

// generate seals the identity, renders the QR image and stores it.
func (i *Issuer) generate(ctx context.Context, identity model.AttendeeIdentity) (model.SealedPayload, string, error) {
	payload, err := i.codec.Seal(identity)
	if err != nil {
		return "", "", fmt.Errorf("seal: %w", err)
	}
	png, err := i.codec.RenderImage(payload)
	if err != nil {
		return "", "", fmt.Errorf("render: %w", err)
	}
	key := imageKey(identity.RegistrationCode)
	if err := i.images.Put(ctx, key, png); err != nil {
		return "", "", fmt.Errorf("store image: %w", err)
	}
	return payload, key, nil
}

// fallback stores a placeholder artifact so registration can proceed without a
// scannable code, and reports ErrGenerationFailed.
func (i *Issuer) fallback(ctx context.Context, identity model.AttendeeIdentity, cause error) (IssueResult, error) {
	i.logger.Error("credential generation failed",
		"attendee_id", identity.AttendeeID,
		"registration_code", credential.MaskCode(identity.RegistrationCode),
		"error", cause,
	)
	key := "credentials/placeholder-" + identity.RegistrationCode + ".txt"
	if err := i.images.Put(ctx, key, credential.Placeholder(identity)); err != nil {
		return IssueResult{}, fmt.Errorf("%w: %w (placeholder: %v)", ErrGenerationFailed, cause, err)
	}
	return IssueResult{Identity: identity, PlaceholderKey: key}, fmt.Errorf("%w: %w", ErrGenerationFailed, cause)
}

func (i *Issuer) discardImage(ctx context.Context, key string) {
	if err := i.images.Delete(ctx, key); err != nil {
		i.logger.Warn("delete credential image", "key", key, "error", err)
	}
}

func imageKey(registrationCode string) string {
	return fmt.Sprintf("credentials/%s-%s.png", registrationCode, uuid.NewString()[:8])
}
