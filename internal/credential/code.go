package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	registrationPrefix  = "REG-"
	registrationLength  = 8
	registrationCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var registrationCodeRe = regexp.MustCompile(`^REG-[A-Z0-9]{8}$`)

// NewRegistrationCode returns a random code of the form REG-XXXXXXXX.
func NewRegistrationCode() (string, error) {
	var sb strings.Builder
	sb.WriteString(registrationPrefix)
	max := big.NewInt(int64(len(registrationCharset)))
	for i := 0; i < registrationLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate registration code: %w", err)
		}
		sb.WriteByte(registrationCharset[n.Int64()])
	}
	return sb.String(), nil
}

// ValidRegistrationCode reports whether code has the REG-XXXXXXXX shape.
func ValidRegistrationCode(code string) bool {
	return registrationCodeRe.MatchString(code)
}

// MaskCode masks a registration code for logging (e.g., REG-****CD34)
func MaskCode(code string) string {
	if len(code) <= len(registrationPrefix)+4 {
		return "****"
	}
	suffix := code[len(code)-4:]
	return registrationPrefix + strings.Repeat("*", len(code)-len(registrationPrefix)-4) + suffix
}
