package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gatepass/server/internal/credential"
	"github.com/spf13/cobra"
)

// errVerifyFailed makes the command exit non-zero after printing its verdict.
var errVerifyFailed = errors.New("credential did not verify")

func newVerifyCmd() *cobra.Command {
	var (
		text      string
		imagePath string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Decode scanned credential text and check its integrity tag",
		Long: `Decode a scanned credential offline with CREDENTIAL_SECRET and check its integrity tag.
The attendee record is not consulted, so a credential that verifies here may still be
superseded or belong to a deleted attendee.

Example:
  checkinctl verify --text "<scanned text>"
  checkinctl verify --image badge.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (text == "") == (imagePath == "") {
				return fmt.Errorf("exactly one of --text or --image is required")
			}
			codec, err := newCodec()
			if err != nil {
				return err
			}

			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read %s: %w", imagePath, err)
				}
				if text, err = credential.ScanImage(data); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			decoded, err := codec.ParseScannedText(text)
			if err != nil {
				printf(w, "result: MALFORMED\n")
				return errVerifyFailed
			}
			c := decoded.Claims
			printf(w, "format:            %s\n", decoded.Format)
			printf(w, "attendee_id:       %d\n", c.AttendeeID)
			printf(w, "registration_code: %s\n", c.RegistrationCode)
			printf(w, "event_id:          %d\n", c.EventID)
			printf(w, "issued_at:         %s\n", time.Unix(c.Timestamp, 0).UTC().Format(time.RFC3339))

			switch {
			case !c.Complete():
				printf(w, "result: MALFORMED\n")
				return errVerifyFailed
			case !codec.TagMatches(c):
				printf(w, "result: TAMPERED\n")
				return errVerifyFailed
			}
			printf(w, "result: OK\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "scanned credential text")
	cmd.Flags().StringVar(&imagePath, "image", "", "PNG or JPEG photo of a credential")
	return cmd
}
