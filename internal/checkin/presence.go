package checkin

import (
	"time"

	"github.com/gatepass/server/internal/model"
)

// Outcome classifies the effect of a scan.
type Outcome string

const (
	OutcomeCheckedIn         Outcome = "CHECKED_IN"
	OutcomeCheckedOut        Outcome = "CHECKED_OUT"
	OutcomeAlreadyCheckedOut Outcome = "ALREADY_CHECKED_OUT"
)

// Policy configures the presence state machine.
type Policy struct {
	// AllowReentry lets a DEPARTED attendee check in again. When false, DEPARTED is terminal.
	AllowReentry bool
}

// Transition computes the presence that follows a scan by actorID at now.
// changed is false when the scan must not mutate the record.
func Transition(current model.Presence, actorID int64, now time.Time, policy Policy) (next model.Presence, outcome Outcome, changed bool) {
	switch current.State() {
	case model.NotPresent:
		return checkIn(actorID, now), OutcomeCheckedIn, true

	case model.Present:
		next = current
		out := now
		// checked_out_at must never precede checked_in_at, even with skewed device clocks.
		if out.Before(*current.CheckedInAt) {
			out = *current.CheckedInAt
		}
		by := actorID
		next.CheckedOutAt = &out
		next.CheckedOutBy = &by
		return next, OutcomeCheckedOut, true

	default:
		if policy.AllowReentry {
			return checkIn(actorID, now), OutcomeCheckedIn, true
		}
		return current, OutcomeAlreadyCheckedOut, false
	}
}

func checkIn(actorID int64, now time.Time) model.Presence {
	in := now
	by := actorID
	return model.Presence{CheckedInAt: &in, CheckedInBy: &by}
}
