package credential

import (
	"crypto/cipher"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

// sealedEncoding is unpadded upper-case base32. Every character is in the QR
// alphanumeric set, so the symbol encodes 5.5 bits per module pair instead of 8.
var sealedEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Format identifies which credential text format a scan was decoded from.
type Format string

const (
	FormatSealed Format = "sealed"
	FormatLegacy Format = "legacy_json"
)

// Decoder is one strategy for turning scanned text into claims.
type Decoder interface {
	Format() Format
	Decode(raw string) (Claims, error)
}

// SealedDecoder opens payloads produced by Codec.Seal.
type SealedDecoder struct {
	aead cipher.AEAD
}

func (d *SealedDecoder) Format() Format { return FormatSealed }

func (d *SealedDecoder) Decode(raw string) (Claims, error) {
	data, err := sealedEncoding.DecodeString(raw)
	if err != nil {
		return Claims{}, fmt.Errorf("decode base32: %w", err)
	}
	// Non-canonical trailing bits would let two texts open to the same credential.
	if sealedEncoding.EncodeToString(data) != raw {
		return Claims{}, errors.New("non-canonical base32")
	}
	nonceSize := d.aead.NonceSize()
	if len(data) < nonceSize+d.aead.Overhead() {
		return Claims{}, errors.New("sealed payload too short")
	}
	plaintext, err := d.aead.Open(nil, data[:nonceSize], data[nonceSize:], sealAD)
	if err != nil {
		return Claims{}, fmt.Errorf("open sealed payload: %w", err)
	}
	return unmarshalCompact(plaintext)
}

// LegacyJSONDecoder reads the plain JSON claims issued before payloads were sealed.
// It performs no integrity checking of its own; the tag check applies afterwards.
type LegacyJSONDecoder struct{}

func (LegacyJSONDecoder) Format() Format { return FormatLegacy }

func (LegacyJSONDecoder) Decode(raw string) (Claims, error) {
	if !strings.HasPrefix(raw, "{") {
		return Claims{}, errors.New("not a JSON object")
	}
	return decodeClaims([]byte(raw))
}
