// Package cli implements ledgerctl, the back-office command line for
// settlements, exchange rates and ledger maintenance.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/agency-ledger/internal/app"
	"github.com/josh-kwaku/agency-ledger/internal/config"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/service/settlement"
)

const connectTimeout = 30 * time.Second

var cliActor = settlement.Actor{Source: "cli"}

// NewRootCommand creates the ledgerctl command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Agency ledger administration",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newSettleCommand(),
		newSettleBulkCommand(),
		newDeletePaymentCommand(),
		newRatesCommand(),
		newChartCommand(),
		newTasksCommand(),
		newSeedAdminCommand(),
		newUserStatusCommand(),
		newMigrateCommand(),
	)

	return rootCmd
}

// withApp loads config, wires the ledger and runs fn. Logs go to stderr so
// stdout carries only the command's JSON result.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cmd.ErrOrStderr(), "ledgerctl", cfg.LogLevel, cfg.AppEnv)
	ctx := logging.WithLogger(cmd.Context(), logger)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	a, err := app.New(connectCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
