package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/agency-ledger/internal/app"
)

func newTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and drive deferred posting tasks",
	}
	cmd.AddCommand(newTasksRetryCommand())
	return cmd
}

func newTasksRetryCommand() *cobra.Command {
	var requeue bool

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Run one pass over pending posting tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				var requeued int64
				if requeue {
					n, err := a.Tasks.RequeueFailed(ctx)
					if err != nil {
						return err
					}
					requeued = n
				}

				done, err := a.Retry.RunOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{
					"requeued":  requeued,
					"completed": int64(done),
				})
			})
		},
	}

	cmd.Flags().BoolVar(&requeue, "requeue-failed", true, "move failed tasks back to pending first")

	return cmd
}
