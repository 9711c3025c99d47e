package cmd

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dgr198213-ui/Agent00/internal/core/db"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	var showStatus bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			out := cmd.OutOrStdout()
			if showStatus {
				statuses, err := db.MigrateStatus(database)
				if err != nil {
					return fmt.Errorf("failed to read migration status: %w", err)
				}
				table := tablewriter.NewWriter(out)
				table.Header("Migration", "Status", "Applied At")
				for _, s := range statuses {
					state, at := "pending", "-"
					if s.Applied {
						state = "applied"
						if s.AppliedAt != nil {
							at = s.AppliedAt.Format(time.RFC3339)
						}
					}
					if err := table.Append(s.ID, state, at); err != nil {
						return err
					}
				}
				return table.Render()
			}

			ran, err := db.MigrateUp(database)
			if err != nil {
				return err
			}
			for _, id := range ran {
				logger.Info("applied migration", "migration", id)
			}
			fmt.Fprintf(out, "%d migration(s) applied\n", len(ran))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showStatus, "status", false, "list migrations and whether they are applied")
	return cmd
}
