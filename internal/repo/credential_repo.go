package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatepass/server/internal/model"
)

// CredentialRepo defines the interface for credential persistence
type CredentialRepo interface {
	Put(ctx context.Context, attendeeID int64, payload model.SealedPayload, imageKey string) (model.Credential, error)
	GetByAttendee(ctx context.Context, attendeeID int64) (model.Credential, error)
	MarkConsumed(ctx context.Context, credentialID int64, when time.Time) error
	Replace(ctx context.Context, attendeeID int64, payload model.SealedPayload, imageKey string) (cred model.Credential, oldImageKey string, err error)
	ReplaceWithCode(ctx context.Context, attendeeID int64, registrationCode string, payload model.SealedPayload, imageKey string) (cred model.Credential, oldImageKey string, err error)
}

type credentialRepo struct {
	db *sql.DB
}

// NewCredentialRepo creates a new CredentialRepo instance
func NewCredentialRepo(db *sql.DB) CredentialRepo {
	return &credentialRepo{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertCredential(ctx context.Context, q queryRower, attendeeID int64, payload model.SealedPayload, imageKey string) (model.Credential, error) {
	cred := model.Credential{
		AttendeeID:    attendeeID,
		SealedPayload: payload,
		ImageKey:      imageKey,
	}
	err := q.QueryRowContext(ctx, `
		INSERT INTO credentials (attendee_id, sealed_payload, image_key)
		VALUES ($1, $2, $3)
		RETURNING id, consumed, consumed_at, created_at
	`, attendeeID, string(payload), imageKey).Scan(
		&cred.ID,
		&cred.Consumed,
		&cred.ConsumedAt,
		&cred.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Credential{}, ErrCredentialExists
		}
		return model.Credential{}, fmt.Errorf("insert credential: %w", err)
	}
	return cred, nil
}

// Put stores the first credential of an attendee.
func (r *credentialRepo) Put(ctx context.Context, attendeeID int64, payload model.SealedPayload, imageKey string) (model.Credential, error) {
	return insertCredential(ctx, r.db, attendeeID, payload, imageKey)
}

// GetByAttendee returns the live credential of the attendee.
func (r *credentialRepo) GetByAttendee(ctx context.Context, attendeeID int64) (model.Credential, error) {
	var cred model.Credential
	var payload string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, attendee_id, sealed_payload, image_key, consumed, consumed_at, created_at
		FROM credentials
		WHERE attendee_id = $1
	`, attendeeID).Scan(
		&cred.ID,
		&cred.AttendeeID,
		&payload,
		&cred.ImageKey,
		&cred.Consumed,
		&cred.ConsumedAt,
		&cred.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, fmt.Errorf("credential: %w", ErrNotFound)
		}
		return model.Credential{}, fmt.Errorf("query credential: %w", err)
	}
	cred.SealedPayload = model.SealedPayload(payload)
	return cred, nil
}

// MarkConsumed sets consumed = true and consumed_at = when. The first consumption wins;
// marking an already consumed credential is a no-op.
func (r *credentialRepo) MarkConsumed(ctx context.Context, credentialID int64, when time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE credentials SET consumed = true, consumed_at = $2
		WHERE id = $1 AND NOT consumed
	`, credentialID, when)
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark consumed: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM credentials WHERE id = $1)`, credentialID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if !exists {
		return fmt.Errorf("credential: %w", ErrNotFound)
	}
	return nil
}

// Replace atomically removes the attendee's live credential (if any) and inserts the new one.
// The returned oldImageKey names the artifact the caller must delete from image storage.
func (r *credentialRepo) Replace(ctx context.Context, attendeeID int64, payload model.SealedPayload, imageKey string) (model.Credential, string, error) {
	return r.replace(ctx, attendeeID, "", payload, imageKey)
}

// ReplaceWithCode is Replace plus assigning a new registration code to the attendee in
// the same transaction, so credentials carrying the old code stop resolving.
func (r *credentialRepo) ReplaceWithCode(ctx context.Context, attendeeID int64, registrationCode string, payload model.SealedPayload, imageKey string) (model.Credential, string, error) {
	if registrationCode == "" {
		return model.Credential{}, "", errors.New("registration code is required")
	}
	return r.replace(ctx, attendeeID, registrationCode, payload, imageKey)
}

func (r *credentialRepo) replace(ctx context.Context, attendeeID int64, newCode string, payload model.SealedPayload, imageKey string) (model.Credential, string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Credential{}, "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Advisory lock: serialize issuance per attendee; released on COMMIT/ROLLBACK.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1::text))`, attendeeID); err != nil {
		return model.Credential{}, "", fmt.Errorf("advisory lock: %w", err)
	}

	if newCode != "" {
		result, err := tx.ExecContext(ctx, `
			UPDATE attendees SET registration_code = $2, updated_at = now() WHERE id = $1
		`, attendeeID, newCode)
		if err != nil {
			return model.Credential{}, "", fmt.Errorf("rotate registration code: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return model.Credential{}, "", fmt.Errorf("rotate registration code: rows affected: %w", err)
		}
		if n == 0 {
			return model.Credential{}, "", fmt.Errorf("attendee: %w", ErrNotFound)
		}
	}

	var oldImageKey string
	err = tx.QueryRowContext(ctx, `
		DELETE FROM credentials WHERE attendee_id = $1 RETURNING image_key
	`, attendeeID).Scan(&oldImageKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, "", fmt.Errorf("delete previous credential: %w", err)
	}

	cred, err := insertCredential(ctx, tx, attendeeID, payload, imageKey)
	if err != nil {
		return model.Credential{}, "", err
	}

	if err := tx.Commit(); err != nil {
		return model.Credential{}, "", fmt.Errorf("commit: %w", err)
	}
	return cred, oldImageKey, nil
}
