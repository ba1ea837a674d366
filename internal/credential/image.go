package credential

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gatepass/server/internal/model"
	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
)

// ScanImage extracts the text of the QR code in a PNG or JPEG photo.
func ScanImage(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize image: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoQRCode, err)
	}
	return result.GetText(), nil
}

// Placeholder returns the non-scannable text artifact stored when a QR image
// cannot be generated for an attendee.
func Placeholder(identity model.AttendeeIdentity) []byte {
	return []byte(fmt.Sprintf("Check-in credential for attendee %d\nRegistration: %s\nEvent ID: %d\n",
		identity.AttendeeID, identity.RegistrationCode, identity.EventID))
}
