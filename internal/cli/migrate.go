package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/agency-ledger/internal/app"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/migrations"
)

type migrateOutput struct {
	Applied []string `json:"applied"`
	Pending []string `json:"pending,omitempty"`
}

func newMigrateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := migrateOutput{Applied: []string{}}

				if dryRun {
					pending, err := migrations.Pending(ctx, a.DB)
					if err != nil {
						return err
					}
					out.Pending = pending
					return printJSON(cmd.OutOrStdout(), out)
				}

				applied, err := migrations.Apply(ctx, a.DB)
				if len(applied) > 0 {
					out.Applied = applied
					logging.FromContext(ctx).Info("migrations applied", "count", len(applied))
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")

	return cmd
}
