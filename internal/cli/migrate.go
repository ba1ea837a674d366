package cli

import (
	"fmt"

	"github.com/gatepass/server/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cliEnv.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			database, err := db.Open(cmd.Context(), cliEnv.DatabaseURL, appLogger)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.Migrate(database, appLogger); err != nil {
				return err
			}
			version, err := db.MigrationVersion(database)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return nil
		},
	}
}
