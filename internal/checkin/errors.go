package checkin

import (
	"errors"
	"fmt"
)

// Verification failures. Each maps to a distinct user-facing message.
var (
	// ErrMalformed: the scanned text is undecodable or lacks required claims.
	ErrMalformed = errors.New("malformed credential")

	// ErrTampered: the credential decodes but fails the integrity check.
	ErrTampered = errors.New("tampered credential")

	// ErrSuperseded: the credential was valid once but has been replaced by a
	// reissue. It classifies as ErrTampered.
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer credential", ErrTampered)

	// ErrUnknownAttendee: the claims are authentic but match no live attendee record.
	ErrUnknownAttendee = errors.New("unknown attendee")

	// ErrAlreadyCheckedIn: a manual check-in found the attendee present, or departed
	// with re-entry disabled.
	ErrAlreadyCheckedIn = errors.New("attendee already checked in")

	// ErrGenerationFailed: a credential image could not be produced; a placeholder
	// artifact was stored instead.
	ErrGenerationFailed = errors.New("credential generation failed")
)
