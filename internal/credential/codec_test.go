package credential

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gatepass/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret     = "test-credential-secret-at-least-32-bytes"
	sealedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, opts...)
	require.NoError(t, err)
	return c
}

func exampleIdentity() model.AttendeeIdentity {
	return model.AttendeeIdentity{
		AttendeeID:       42,
		RegistrationCode: "REG-AB12CD34",
		EventID:          7,
		IssuedAt:         time.Date(2025, 10, 22, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewCodec_rejectsShortSecret(t *testing.T) {
	_, err := NewCodec("short")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestSeal_roundTrip(t *testing.T) {
	c := newTestCodec(t)
	identity := exampleIdentity()

	payload, err := c.Seal(identity)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), identity.RegistrationCode, "sealed payload must be opaque")

	decoded, err := c.ParseScannedText(string(payload))
	require.NoError(t, err)
	assert.Equal(t, FormatSealed, decoded.Format)
	assert.Equal(t, payload, decoded.Payload)
	assert.Equal(t, identity.AttendeeID, decoded.Claims.AttendeeID)
	assert.Equal(t, identity.RegistrationCode, decoded.Claims.RegistrationCode)
	assert.Equal(t, identity.EventID, decoded.Claims.EventID)
	assert.Equal(t, identity.IssuedAt.Unix(), decoded.Claims.Timestamp)
	assert.True(t, decoded.Claims.Complete())
	assert.True(t, c.TagMatches(decoded.Claims))
}

func TestSeal_nonDeterministic(t *testing.T) {
	c := newTestCodec(t)
	p1, err := c.Seal(exampleIdentity())
	require.NoError(t, err)
	p2, err := c.Seal(exampleIdentity())
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2, "fresh nonce per seal")
}

func TestSeal_invalidIdentity(t *testing.T) {
	c := newTestCodec(t)
	_, err := c.Seal(model.AttendeeIdentity{RegistrationCode: "REG-AB12CD34"})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, err = c.Seal(model.AttendeeIdentity{AttendeeID: 1, RegistrationCode: "  "})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, err = c.Seal(model.AttendeeIdentity{AttendeeID: 1, RegistrationCode: "reg-ab12cd34"})
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestSeal_alphanumericText(t *testing.T) {
	c := newTestCodec(t)
	payload, err := c.Seal(model.AttendeeIdentity{
		AttendeeID:       1<<63 - 1,
		RegistrationCode: "REG-ZZZZZZZZ",
		EventID:          1<<63 - 1,
		IssuedAt:         time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC),
	})
	require.NoError(t, err)
	for _, r := range string(payload) {
		assert.True(t, strings.ContainsRune(sealedAlphabet, r), "character %q outside QR alphanumeric set", r)
	}
	assert.LessOrEqual(t, len(payload), 200, "largest identity must stay within a version 11 symbol")
}

func TestMaxVersionForSize(t *testing.T) {
	assert.Equal(t, 12, MaxVersionForSize(DefaultQRSize))
	assert.Equal(t, 0, MaxVersionForSize(64))
	assert.Equal(t, 40, MaxVersionForSize(4000))

	c := newTestCodec(t, WithQRSize(120))
	_, err := c.Seal(exampleIdentity())
	assert.ErrorIs(t, err, ErrPayloadTooLarge, "120px only fits a version 1 symbol at 4px per module")
}

func TestSeal_failsLoudlyWhenTooLarge(t *testing.T) {
	c := newTestCodec(t, WithMaxVersion(2))
	payload, err := c.Seal(exampleIdentity())
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Empty(t, payload)
}

func TestParseScannedText_otherSecretIsUndecodable(t *testing.T) {
	payload, err := newTestCodec(t).Seal(exampleIdentity())
	require.NoError(t, err)

	other, err := NewCodec("another-credential-secret-32-bytes-long")
	require.NoError(t, err)
	_, err = other.ParseScannedText(string(payload))
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestParseScannedText_singleCharacterMutation(t *testing.T) {
	c := newTestCodec(t)
	identity := exampleIdentity()
	payload, err := c.Seal(identity)
	require.NoError(t, err)

	const alphabet = sealedAlphabet
	raw := []byte(payload)
	for i := range raw {
		mutated := append([]byte(nil), raw...)
		idx := strings.IndexByte(alphabet, raw[i])
		mutated[i] = alphabet[(idx+1)%len(alphabet)]

		decoded, err := c.ParseScannedText(string(mutated))
		if err != nil {
			assert.ErrorIs(t, err, ErrUndecodable)
			continue
		}
		// Must never resolve to another attendee with a valid tag.
		if c.TagMatches(decoded.Claims) {
			assert.Equal(t, identity.AttendeeID, decoded.Claims.AttendeeID, "mutation at %d", i)
			assert.Equal(t, identity.RegistrationCode, decoded.Claims.RegistrationCode, "mutation at %d", i)
		}
	}
}

func TestParseScannedText_bitFlipInCiphertext(t *testing.T) {
	c := newTestCodec(t)
	payload, err := c.Seal(exampleIdentity())
	require.NoError(t, err)

	data, err := sealedEncoding.DecodeString(string(payload))
	require.NoError(t, err)
	for i := range data {
		flipped := append([]byte(nil), data...)
		flipped[i] ^= 0x01
		_, err := c.ParseScannedText(sealedEncoding.EncodeToString(flipped))
		assert.ErrorIs(t, err, ErrUndecodable, "flip at byte %d", i)
	}
}

func TestParseScannedText_lowerCaseIsUndecodable(t *testing.T) {
	c := newTestCodec(t)
	payload, err := c.Seal(exampleIdentity())
	require.NoError(t, err)

	_, err = c.ParseScannedText(strings.ToLower(string(payload)))
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestParseScannedText_trimsWhitespace(t *testing.T) {
	c := newTestCodec(t)
	payload, err := c.Seal(exampleIdentity())
	require.NoError(t, err)

	decoded, err := c.ParseScannedText("  " + string(payload) + "\n")
	require.NoError(t, err)
	assert.Equal(t, payload, decoded.Payload)
}

func TestParseScannedText_empty(t *testing.T) {
	_, err := newTestCodec(t).ParseScannedText("   ")
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestParseScannedText_legacyJSON(t *testing.T) {
	c := newTestCodec(t)
	legacy, err := json.Marshal(map[string]any{
		"attendee_id":     "42",
		"registration_id": "REG-AB12CD34",
		"event_id":        7,
		"name":            "Ada Lovelace",
		"timestamp":       1761123600,
		"hash":            IntegrityTag(42, "REG-AB12CD34", testSecret),
	})
	require.NoError(t, err)

	decoded, err := c.ParseScannedText(string(legacy))
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, decoded.Format)
	assert.Equal(t, int64(42), decoded.Claims.AttendeeID)
	assert.Equal(t, int64(7), decoded.Claims.EventID)
	assert.True(t, c.TagMatches(decoded.Claims))
}

func TestDecoders_independently(t *testing.T) {
	c := newTestCodec(t)
	payload, err := c.Seal(exampleIdentity())
	require.NoError(t, err)

	sealed := c.decoders[0]
	legacy := c.decoders[1]
	require.Equal(t, FormatSealed, sealed.Format())
	require.Equal(t, FormatLegacy, legacy.Format())

	_, err = sealed.Decode(string(payload))
	assert.NoError(t, err)
	_, err = legacy.Decode(string(payload))
	assert.Error(t, err, "legacy decoder must not accept sealed text")

	_, err = sealed.Decode(`{"attendee_id":1}`)
	assert.Error(t, err, "sealed decoder must not accept plain JSON")
	_, err = legacy.Decode(`{"attendee_id":1,"registration_id":"REG-AAAAAAAA","hash":"x"}`)
	assert.NoError(t, err)
	_, err = legacy.Decode(`{"attendee_id":"forty-two"}`)
	assert.Error(t, err)
}

func TestTagMatches_rejectsEditedClaims(t *testing.T) {
	c := newTestCodec(t)
	claims := Claims{
		AttendeeID:       42,
		RegistrationCode: "REG-AB12CD34",
		Hash:             IntegrityTag(42, "REG-AB12CD34", testSecret),
	}
	assert.True(t, c.TagMatches(claims))

	claims.AttendeeID = 43
	assert.False(t, c.TagMatches(claims))

	claims.AttendeeID = 42
	claims.Hash = IntegrityTag(42, "REG-AB12CD34", "some-other-secret")
	assert.False(t, c.TagMatches(claims))
}

func TestIntegrityTag(t *testing.T) {
	h1 := IntegrityTag(42, "REG-AB12CD34", testSecret)
	h2 := IntegrityTag(42, "REG-AB12CD34", testSecret)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.Equal(t, strings.ToLower(h1), h1)
	assert.NotEqual(t, h1, IntegrityTag(42, "REG-AB12CD35", testSecret))
	assert.NotEqual(t, h1, IntegrityTag(41, "REG-AB12CD34", testSecret))
}
