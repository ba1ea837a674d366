package repo

import (
	"errors"

	"github.com/gatepass/server/internal/model"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCredentialExists is returned by Put when the attendee already holds a live credential.
	ErrCredentialExists = errors.New("attendee already has a credential")
)

// PresenceFunc computes the next presence from the locked attendee row.
// Returning changed=false leaves the row untouched.
type PresenceFunc func(current model.Attendee) (next model.Presence, changed bool, err error)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
