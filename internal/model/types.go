package model

import (
	"time"
)

// PresenceState is derived from an attendee's check-in/check-out timestamps.
type PresenceState string

const (
	NotPresent PresenceState = "NOT_PRESENT"
	Present    PresenceState = "PRESENT"
	Departed   PresenceState = "DEPARTED"
)

// SealedPayload is the opaque text form of a credential, as encoded into the QR code.
type SealedPayload string

// AttendeeIdentity is the fixed claim set embedded in a credential
type AttendeeIdentity struct {
	AttendeeID       int64
	RegistrationCode string
	EventID          int64
	IssuedAt         time.Time
}

// Attendee represents the attendee record as seen by check-in
type Attendee struct {
	ID               int64
	EventID          int64
	RegistrationCode string
	Name             string
	Email            string
	Presence         Presence
	CreatedAt        time.Time
}

// Identity returns the claims a new credential for this attendee carries.
func (a Attendee) Identity(issuedAt time.Time) AttendeeIdentity {
	return AttendeeIdentity{
		AttendeeID:       a.ID,
		RegistrationCode: a.RegistrationCode,
		EventID:          a.EventID,
		IssuedAt:         issuedAt,
	}
}

// Presence holds the two nullable timestamp/actor pairs owned by the attendee record
type Presence struct {
	CheckedInAt  *time.Time
	CheckedInBy  *int64
	CheckedOutAt *time.Time
	CheckedOutBy *int64
}

// State derives the presence state from the timestamps.
func (p Presence) State() PresenceState {
	switch {
	case p.CheckedInAt == nil:
		return NotPresent
	case p.CheckedOutAt == nil:
		return Present
	default:
		return Departed
	}
}

// Credential represents the single live credential of an attendee
type Credential struct {
	ID            int64
	AttendeeID    int64
	SealedPayload SealedPayload
	ImageKey      string
	Consumed      bool
	ConsumedAt    *time.Time
	CreatedAt     time.Time
}
