package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/agency-ledger/internal/app"
	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

type rateOutput struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
	RateDate string `json:"rate_date"`
	Source   string `json:"source,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

func newRatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Manage daily exchange rates",
	}
	cmd.AddCommand(newRatesAddCommand(), newRatesGetCommand())
	return cmd
}

func newRatesAddCommand() *cobra.Command {
	var currency, date, rate, source string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record the exchange rate for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cur, err := parseCurrency("currency", currency)
			if err != nil {
				return err
			}
			if cur == domain.BaseCurrency {
				return fmt.Errorf("currency: %s is the base currency", cur)
			}
			day, err := parseDay("date", date)
			if err != nil {
				return err
			}
			if day.IsZero() {
				day = time.Now().UTC().Truncate(24 * time.Hour)
			}
			value, err := decimal.NewFromString(rate)
			if err != nil || !value.IsPositive() {
				return fmt.Errorf("rate: %q must be a positive number", rate)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				r := &domain.ExchangeRate{RateDate: day, Currency: cur, Rate: value, Source: source}
				if err := a.Rates.Record(ctx, r); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rateOutput{
					Currency: string(r.Currency),
					Rate:     r.Rate.String(),
					RateDate: r.RateDate.Format(time.DateOnly),
					Source:   r.Source,
				})
			})
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "USD", "foreign currency")
	cmd.Flags().StringVar(&date, "date", "", "rate date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&rate, "rate", "", "base currency units per foreign unit (required)")
	cmd.Flags().StringVar(&source, "source", "manual", "where the rate came from")
	_ = cmd.MarkFlagRequired("rate")

	return cmd
}

func newRatesGetCommand() *cobra.Command {
	var currency, date string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the rate the ledger would use for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cur, err := parseCurrency("currency", currency)
			if err != nil {
				return err
			}
			day, err := parseDay("date", date)
			if err != nil {
				return err
			}
			if day.IsZero() {
				day = time.Now().UTC()
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, err := a.Rates.Resolve(ctx, cur, day)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rateOutput{
					Currency: string(r.Currency),
					Rate:     r.Value.String(),
					RateDate: r.RateDate.Format(time.DateOnly),
					Source:   r.Source,
					Tier:     string(r.Tier),
				})
			})
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "USD", "currency to resolve")
	cmd.Flags().StringVar(&date, "date", "", "as-of date, YYYY-MM-DD (default today)")

	return cmd
}
