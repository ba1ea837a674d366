package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/gatepass/server/internal/credential"
	"github.com/gatepass/server/internal/model"
	"github.com/spf13/cobra"
)

func newCodec() (*credential.Codec, error) {
	if cliEnv.CredentialSecret == "" {
		return nil, fmt.Errorf("CREDENTIAL_SECRET is required")
	}
	return credential.NewCodec(cliEnv.CredentialSecret,
		credential.WithQRSize(cliEnv.QRSize),
		credential.WithMaxVersion(cliEnv.QRMaxVersion),
	)
}

func newSealCmd() *cobra.Command {
	var (
		attendeeID int64
		code       string
		eventID    int64
		out        string
	)

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal an attendee identity into credential text",
		Long: `Seal an attendee identity with CREDENTIAL_SECRET and print the credential text.

The output is not stored. The server only admits the credential currently on
record for an attendee, so a code sealed here scans as superseded unless it was
issued through POST /attendees/{id}/credential. Use it to test decoding and
printing, or with "checkinctl verify".

Example:
  checkinctl seal --attendee-id 42 --code REG-AB12CD34 --event-id 7 --out badge.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := newCodec()
			if err != nil {
				return err
			}

			payload, err := codec.Seal(model.AttendeeIdentity{
				AttendeeID:       attendeeID,
				RegistrationCode: code,
				EventID:          eventID,
				IssuedAt:         time.Now().UTC(),
			})
			if err != nil {
				return fmt.Errorf("seal: %w", err)
			}

			if out != "" {
				png, err := codec.RenderImage(payload)
				if err != nil {
					return fmt.Errorf("render: %w", err)
				}
				if err := os.WriteFile(out, png, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				appLogger.Info("credential image written", "path", out, "bytes", len(png))
			}

			printf(cmd.OutOrStdout(), "%s\n", payload)
			return nil
		},
	}

	cmd.Flags().Int64Var(&attendeeID, "attendee-id", 0, "attendee id (required)")
	cmd.Flags().StringVar(&code, "code", "", "registration code, e.g. REG-AB12CD34 (required)")
	cmd.Flags().Int64Var(&eventID, "event-id", 0, "event id")
	cmd.Flags().StringVar(&out, "out", "", "also write the QR image to this PNG file")
	_ = cmd.MarkFlagRequired("attendee-id")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}
