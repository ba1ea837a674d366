package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// MinCredentialSecretLength is the shortest accepted CREDENTIAL_SECRET, in bytes.
const MinCredentialSecretLength = 32

// MinQRSize fits a version 11 symbol, the largest a sealed credential needs,
// at 4 pixels per module including the quiet zone.
const MinQRSize = (4*11 + 17 + 8) * 4

// Config holds the application configuration
type Config struct {
	Environment string `env:"ENVIRONMENT,default=dev"`
	Port        int    `env:"PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	DatabaseURL      string `env:"DATABASE_URL,required=true"`
	CredentialSecret string `env:"CREDENTIAL_SECRET,required=true"`
	JWTSecret        string `env:"JWT_SECRET,required=true"`

	ImageDir     string `env:"IMAGE_DIR,default=./data/images"`
	QRSize       int    `env:"QR_SIZE,default=300"`
	QRMaxVersion int    `env:"QR_MAX_VERSION,default=20"`
	AllowReentry bool   `env:"ALLOW_REENTRY,default=false"`

	ScanRateRPS   float64 `env:"SCAN_RATE_RPS,default=20"`
	ScanRateBurst int     `env:"SCAN_RATE_BURST,default=40"`

	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

// Load reads .env files (if present) and then the process environment. Variables already
// set in the environment win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return FromEnviron()
}

// FromEnviron builds and validates a Config from the process environment only.
func FromEnviron() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that struct tags cannot express.
func (c *Config) Validate() error {
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", c.Environment)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if len(c.CredentialSecret) < MinCredentialSecretLength {
		return fmt.Errorf("CREDENTIAL_SECRET must be at least %d bytes", MinCredentialSecretLength)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.QRSize < MinQRSize {
		return fmt.Errorf("QR_SIZE must be at least %d, got %d", MinQRSize, c.QRSize)
	}
	if c.QRMaxVersion < 1 || c.QRMaxVersion > 40 {
		return fmt.Errorf("QR_MAX_VERSION must be between 1 and 40, got %d", c.QRMaxVersion)
	}
	if c.ScanRateRPS <= 0 || c.ScanRateBurst < 1 {
		return fmt.Errorf("SCAN_RATE_RPS and SCAN_RATE_BURST must be positive")
	}
	return nil
}

// LogAttrs returns the loaded configuration as log attributes with secrets omitted
// and the database password masked.
func (c *Config) LogAttrs() []any {
	return []any{
		slog.String("ENVIRONMENT", c.Environment),
		slog.Int("PORT", c.Port),
		slog.String("LOG_LEVEL", c.LogLevel),
		slog.String("DATABASE_URL", RedactDSN(c.DatabaseURL)),
		slog.String("IMAGE_DIR", c.ImageDir),
		slog.Int("QR_SIZE", c.QRSize),
		slog.Int("QR_MAX_VERSION", c.QRMaxVersion),
		slog.Bool("ALLOW_REENTRY", c.AllowReentry),
	}
}

// RedactDSN returns the DSN with any password replaced by xxxxx for logging.
func RedactDSN(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "(invalid DATABASE_URL)"
	}
	return u.Redacted()
}
