package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/gatepass/server/internal/model"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretLength is the shortest shared secret NewCodec accepts.
	MinSecretLength = 32

	DefaultQRSize     = 300
	DefaultMaxVersion = 20

	// MinModulePixels is the smallest module edge, at the configured image size,
	// that scanners read reliably.
	MinModulePixels = 4

	// quietZone is the blank border go-qrcode draws on each side, in modules.
	quietZone = 4

	sealKeyInfo = "gatepass-credential-seal-v1"
)

// sealAD is bound into every sealed payload as AEAD associated data.
var sealAD = []byte("gatepass/credential/v1")

// Codec seals identities into opaque credential text and reads them back.
// A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	secret     string
	aead       cipher.AEAD
	qrSize     int
	maxVersion int
	decoders   []Decoder
}

// Option configures a Codec
type Option func(*Codec)

// WithQRSize sets the minimum rendered image edge in pixels. It also bounds the
// symbol version, since every module must get at least MinModulePixels.
func WithQRSize(px int) Option {
	return func(c *Codec) {
		if px > 0 {
			c.qrSize = px
		}
	}
}

// WithMaxVersion caps the QR symbol version (1-40). Larger versions have denser
// modules and stop scanning reliably at a fixed print size.
func WithMaxVersion(v int) Option {
	return func(c *Codec) {
		if v >= 1 && v <= 40 {
			c.maxVersion = v
		}
	}
}

// NewCodec creates a codec keyed by the deployment's shared secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinSecretLength)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	c := &Codec{
		secret:     secret,
		aead:       aead,
		qrSize:     DefaultQRSize,
		maxVersion: DefaultMaxVersion,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Current format first; legacy plain JSON keeps pre-migration credentials scannable.
	c.decoders = []Decoder{
		&SealedDecoder{aead: aead},
		LegacyJSONDecoder{},
	}

	return c, nil
}

// Seal serializes the identity claims with their integrity tag and encrypts them.
// The result is guaranteed to fit the configured QR symbol.
func (c *Codec) Seal(identity model.AttendeeIdentity) (model.SealedPayload, error) {
	if identity.AttendeeID <= 0 || identity.EventID < 0 || !ValidRegistrationCode(identity.RegistrationCode) {
		return "", ErrInvalidIdentity
	}

	claims := Claims{
		AttendeeID:       identity.AttendeeID,
		RegistrationCode: identity.RegistrationCode,
		EventID:          identity.EventID,
		Timestamp:        identity.IssuedAt.Unix(),
		Hash:             IntegrityTag(identity.AttendeeID, identity.RegistrationCode, c.secret),
	}

	plaintext, err := marshalCompact(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, sealAD)
	payload := model.SealedPayload(sealedEncoding.EncodeToString(sealed))

	if _, err := c.symbol(payload); err != nil {
		return "", err
	}
	return payload, nil
}

// RenderImage renders the payload as a PNG QR code with high error correction
// and a fixed quiet zone. Modules are drawn at a whole number of pixels, so the
// image is at least the configured size. The same payload always yields the same image.
func (c *Codec) RenderImage(payload model.SealedPayload) ([]byte, error) {
	q, err := c.symbol(payload)
	if err != nil {
		return nil, err
	}
	modules := symbolModules(q.VersionNumber)
	pixelsPerModule := (c.qrSize + modules - 1) / modules
	png, err := q.PNG(-pixelsPerModule)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return png, nil
}

func (c *Codec) symbol(payload model.SealedPayload) (*qrcode.QRCode, error) {
	q, err := qrcode.New(string(payload), qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
	}
	if limit := c.versionLimit(); q.VersionNumber > limit {
		return nil, fmt.Errorf("%w: needs version %d, limit is %d at %dpx", ErrPayloadTooLarge, q.VersionNumber, limit, c.qrSize)
	}
	return q, nil
}

// versionLimit is the largest symbol version whose modules are still at least
// MinModulePixels wide at qrSize, further capped by maxVersion.
func (c *Codec) versionLimit() int {
	return min(c.maxVersion, MaxVersionForSize(c.qrSize))
}

// MaxVersionForSize returns the largest QR version that keeps MinModulePixels per
// module, quiet zone included, in a square of px pixels. Zero means none fits.
func MaxVersionForSize(px int) int {
	v := (px/MinModulePixels - 2*quietZone - 17) / 4
	return max(0, min(v, 40))
}

// symbolModules is the edge length of a symbol of the given version, quiet zone included.
func symbolModules(version int) int {
	return 17 + 4*version + 2*quietZone
}

// Decoded is the result of parsing scanned credential text.
type Decoded struct {
	Payload model.SealedPayload
	Format  Format
	Claims  Claims
}

// ParseScannedText runs the decoder strategies in order and returns the first match.
func (c *Codec) ParseScannedText(raw string) (Decoded, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Decoded{}, ErrUndecodable
	}
	for _, d := range c.decoders {
		claims, err := d.Decode(raw)
		if err != nil {
			continue
		}
		return Decoded{
			Payload: model.SealedPayload(raw),
			Format:  d.Format(),
			Claims:  claims,
		}, nil
	}
	return Decoded{}, ErrUndecodable
}

// TagMatches reports whether the claims' integrity tag was produced with this codec's secret.
func (c *Codec) TagMatches(claims Claims) bool {
	return tagMatches(claims, c.secret)
}
