package credential

import "errors"

var (
	// ErrPayloadTooLarge is returned when a sealed payload cannot be encoded into a
	// QR symbol within the configured version and error correction level.
	ErrPayloadTooLarge = errors.New("credential payload exceeds QR capacity")

	// ErrUndecodable is returned when no decoder strategy accepts the scanned text.
	ErrUndecodable = errors.New("credential text is not decodable")

	ErrInvalidIdentity = errors.New("identity requires attendee id and registration code")
	ErrWeakSecret      = errors.New("credential secret is too short")
	ErrNoQRCode        = errors.New("no QR code found in image")
)
