package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Netflix/go-env"
	"github.com/gatepass/server/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var appLogger *slog.Logger

// cliEnvironment holds the settings every subcommand may read. Secrets are checked by
// the commands that need them so that e.g. `token` works without a database.
type cliEnvironment struct {
	Environment      string `env:"ENVIRONMENT,default=dev"`
	LogLevel         string `env:"LOG_LEVEL,default=warn"`
	DatabaseURL      string `env:"DATABASE_URL"`
	CredentialSecret string `env:"CREDENTIAL_SECRET"`
	JWTSecret        string `env:"JWT_SECRET"`
	QRSize           int    `env:"QR_SIZE,default=300"`
	QRMaxVersion     int    `env:"QR_MAX_VERSION,default=20"`
}

var cliEnv cliEnvironment

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "checkinctl",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Operator tooling for attendee check-in credentials",
		Long:              `checkinctl seals and verifies check-in credentials offline, mints staff tokens and runs database migrations.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(".env")
			cliEnv = cliEnvironment{}
			if _, err := env.UnmarshalFromEnviron(&cliEnv); err != nil {
				return fmt.Errorf("failed to unmarshal environment variables: %w", err)
			}
			appLogger = logger.New(cmd.ErrOrStderr(), logger.ParseLogLevel(cliEnv.LogLevel), cliEnv.Environment)
			return nil
		},
	}
	cmd.AddCommand(newSealCmd(), newVerifyCmd(), newTokenCmd(), newMigrateCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
