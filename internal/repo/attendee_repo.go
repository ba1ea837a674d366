package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gatepass/server/internal/model"
)

// AttendeeRepo defines the attendee record operations check-in depends on
type AttendeeRepo interface {
	GetByID(ctx context.Context, id int64) (model.Attendee, error)
	GetByIDAndCode(ctx context.Context, id int64, registrationCode string) (model.Attendee, error)
	UpdatePresence(ctx context.Context, id int64, registrationCode string, fn PresenceFunc) (model.Attendee, error)
}

type attendeeRepo struct {
	db *sql.DB
}

// NewAttendeeRepo creates a new AttendeeRepo instance
func NewAttendeeRepo(db *sql.DB) AttendeeRepo {
	return &attendeeRepo{db: db}
}

const attendeeColumns = `
	id, event_id, registration_code, name, email,
	checked_in_at, checked_in_by, checked_out_at, checked_out_by, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendee(row rowScanner) (model.Attendee, error) {
	var a model.Attendee
	err := row.Scan(
		&a.ID,
		&a.EventID,
		&a.RegistrationCode,
		&a.Name,
		&a.Email,
		&a.Presence.CheckedInAt,
		&a.Presence.CheckedInBy,
		&a.Presence.CheckedOutAt,
		&a.Presence.CheckedOutBy,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Attendee{}, fmt.Errorf("attendee: %w", ErrNotFound)
		}
		return model.Attendee{}, fmt.Errorf("query attendee: %w", err)
	}
	return a, nil
}

// GetByID retrieves an attendee by ID
func (r *attendeeRepo) GetByID(ctx context.Context, id int64) (model.Attendee, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attendeeColumns+` FROM attendees WHERE id = $1`, id)
	return scanAttendee(row)
}

// GetByIDAndCode retrieves the attendee matching both the surrogate id and the registration code
func (r *attendeeRepo) GetByIDAndCode(ctx context.Context, id int64, registrationCode string) (model.Attendee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM attendees
		WHERE id = $1 AND registration_code = $2
	`, id, registrationCode)
	return scanAttendee(row)
}

// UpdatePresence locks the attendee row (SELECT ... FOR UPDATE), lets fn compute the
// transition from the locked state, and writes both timestamp/actor pairs in one UPDATE.
// Concurrent callers for the same attendee serialize on the row lock.
func (r *attendeeRepo) UpdatePresence(ctx context.Context, id int64, registrationCode string, fn PresenceFunc) (model.Attendee, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Attendee{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+attendeeColumns+`
		FROM attendees
		WHERE id = $1 AND registration_code = $2
		FOR UPDATE
	`, id, registrationCode)
	current, err := scanAttendee(row)
	if err != nil {
		return model.Attendee{}, err
	}

	next, changed, err := fn(current)
	if err != nil {
		return model.Attendee{}, err
	}
	if !changed {
		return current, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE attendees
		SET checked_in_at = $2, checked_in_by = $3,
		    checked_out_at = $4, checked_out_by = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, next.CheckedInAt, next.CheckedInBy, next.CheckedOutAt, next.CheckedOutBy)
	if err != nil {
		return model.Attendee{}, fmt.Errorf("update presence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Attendee{}, fmt.Errorf("commit: %w", err)
	}

	current.Presence = next
	return current, nil
}
