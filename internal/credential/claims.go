package credential

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Claims is the decoded content of a credential, whatever format it was read from.
type Claims struct {
	AttendeeID       int64
	RegistrationCode string
	EventID          int64
	Timestamp        int64
	Hash             string
}

// Complete reports whether the claims carry attendee id, registration code and tag.
func (c Claims) Complete() bool {
	return c.AttendeeID > 0 && c.RegistrationCode != "" && c.Hash != ""
}

// wireClaims is the JSON shape of legacy credentials, issued before the sealed format existed.
type wireClaims struct {
	AttendeeID     flexInt `json:"attendee_id"`
	RegistrationID string  `json:"registration_id"`
	EventID        flexInt `json:"event_id,omitempty"`
	Timestamp      flexInt `json:"timestamp,omitempty"`
	Hash           string  `json:"hash"`
}

func (w wireClaims) claims() Claims {
	return Claims{
		AttendeeID:       int64(w.AttendeeID),
		RegistrationCode: w.RegistrationID,
		EventID:          int64(w.EventID),
		Timestamp:        int64(w.Timestamp),
		Hash:             w.Hash,
	}
}

// flexInt accepts both JSON numbers and numeric strings; older credentials
// were written by a serializer that quoted ids.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer claim %q: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

func decodeClaims(data []byte) (Claims, error) {
	var w wireClaims
	if err := json.Unmarshal(data, &w); err != nil {
		return Claims{}, fmt.Errorf("unmarshal claims: %w", err)
	}
	return w.claims(), nil
}

// compactVersion prefixes the binary claim layout sealed inside current credentials:
// version byte, uvarint attendee id, uvarint event id, varint timestamp,
// uvarint-prefixed registration code, raw 32-byte tag.
const compactVersion = 1

var errCompactClaims = errors.New("malformed compact claims")

func marshalCompact(c Claims) ([]byte, error) {
	tag, err := hex.DecodeString(c.Hash)
	if err != nil || len(tag) != sha256.Size {
		return nil, fmt.Errorf("%w: tag must be %d hex-encoded bytes", errCompactClaims, sha256.Size)
	}
	if c.AttendeeID < 0 || c.EventID < 0 {
		return nil, fmt.Errorf("%w: negative id", errCompactClaims)
	}

	b := make([]byte, 0, 1+3*binary.MaxVarintLen64+1+len(c.RegistrationCode)+len(tag))
	b = append(b, compactVersion)
	b = binary.AppendUvarint(b, uint64(c.AttendeeID))
	b = binary.AppendUvarint(b, uint64(c.EventID))
	b = binary.AppendVarint(b, c.Timestamp)
	b = binary.AppendUvarint(b, uint64(len(c.RegistrationCode)))
	b = append(b, c.RegistrationCode...)
	b = append(b, tag...)
	return b, nil
}

func unmarshalCompact(b []byte) (Claims, error) {
	if len(b) == 0 || b[0] != compactVersion {
		return Claims{}, fmt.Errorf("%w: unknown version", errCompactClaims)
	}
	b = b[1:]

	next := func() (uint64, bool) {
		v, n := binary.Uvarint(b)
		if n <= 0 {
			return 0, false
		}
		b = b[n:]
		return v, true
	}

	attendeeID, ok1 := next()
	eventID, ok2 := next()
	ts, n := binary.Varint(b)
	if !ok1 || !ok2 || n <= 0 {
		return Claims{}, errCompactClaims
	}
	b = b[n:]
	codeLen, ok := next()
	if !ok || codeLen > uint64(len(b)) || uint64(len(b))-codeLen != sha256.Size {
		return Claims{}, errCompactClaims
	}
	if attendeeID > 1<<63-1 || eventID > 1<<63-1 {
		return Claims{}, errCompactClaims
	}

	return Claims{
		AttendeeID:       int64(attendeeID),
		RegistrationCode: string(b[:codeLen]),
		EventID:          int64(eventID),
		Timestamp:        ts,
		Hash:             hex.EncodeToString(b[codeLen:]),
	}, nil
}

// IntegrityTag returns SHA-256(attendee_id || registration_code || secret) as lower-case hex.
func IntegrityTag(attendeeID int64, registrationCode, secret string) string {
	data := strconv.FormatInt(attendeeID, 10) + registrationCode + secret
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// tagMatches compares the embedded tag with the expected one in constant time.
func tagMatches(c Claims, secret string) bool {
	expected := IntegrityTag(c.AttendeeID, c.RegistrationCode, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(c.Hash)) == 1
}
