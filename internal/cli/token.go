package cli

import (
	"fmt"
	"time"

	"github.com/gatepass/server/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		actorID int64
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a staff bearer token signed with JWT_SECRET",
		Long: `Mint a staff bearer token for local testing of the scan and admin endpoints.

Example:
  checkinctl token --actor-id 5 --role staff --ttl 2h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cliEnv.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			token, err := auth.NewJWTService(cliEnv.JWTSecret).SignStaffToken(actorID, auth.Role(role), ttl)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&actorID, "actor-id", 0, "staff member id (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleStaff), "staff or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default 12h)")
	_ = cmd.MarkFlagRequired("actor-id")
	return cmd
}
