package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/agency-ledger/internal/app"
	"github.com/josh-kwaku/agency-ledger/internal/service/settlement"
)

type settleOutput struct {
	PaymentID        string `json:"payment_id"`
	Status           string `json:"status"`
	Replayed         bool   `json:"replayed"`
	Backfilled       bool   `json:"backfilled,omitempty"`
	Degraded         bool   `json:"degraded,omitempty"`
	BaseAmount       string `json:"base_amount,omitempty"`
	LedgerMovementID string `json:"ledger_movement_id,omitempty"`
	FXMovementID     string `json:"fx_movement_id,omitempty"`
	FXDeferred       bool   `json:"fx_deferred,omitempty"`
}

func newSettleCommand() *cobra.Command {
	var date, reference, funding string

	cmd := &cobra.Command{
		Use:   "settle <payment-id>",
		Short: "Mark a payment as paid and post it to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paymentID, err := parseID("payment-id", args[0])
			if err != nil {
				return err
			}
			datePaid, err := parseDay("date", date)
			if err != nil {
				return err
			}
			fundingID, err := parseOptionalID("funding-account", funding)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.Settlement.SettlePayment(ctx, settlement.SettleRequest{
					PaymentID:        paymentID,
					DatePaid:         datePaid,
					Reference:        reference,
					FundingAccountID: fundingID,
					Actor:            cliActor,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), toSettleOutput(out))
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "payment date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&reference, "reference", "", "bank or receipt reference")
	cmd.Flags().StringVar(&funding, "funding-account", "", "financial account the money moved through")

	return cmd
}

func toSettleOutput(out *settlement.Outcome) settleOutput {
	o := settleOutput{
		PaymentID:  out.Payment.ID.String(),
		Status:     string(out.Payment.Status),
		Replayed:   out.Replayed,
		Backfilled: out.Backfilled,
		Degraded:   out.Degraded,
		FXDeferred: out.FXDeferred,
	}
	if !out.Replayed {
		o.BaseAmount = out.BaseAmount.String()
	}
	if out.Payment.LedgerMovementID != nil {
		o.LedgerMovementID = out.Payment.LedgerMovementID.String()
	}
	if out.FXMovement != nil {
		o.FXMovementID = out.FXMovement.ID.String()
	}
	return o
}

type bulkLineOutput struct {
	OperatorPaymentID string `json:"operator_payment_id"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	PaymentID         string `json:"payment_id,omitempty"`
	DebtStatus        string `json:"debt_status,omitempty"`
}

type bulkOutput struct {
	Settled int              `json:"settled"`
	Failed  int              `json:"failed"`
	Lines   []bulkLineOutput `json:"lines"`
}

func toBulkOutput(res *settlement.BulkResult) bulkOutput {
	out := bulkOutput{Settled: res.Settled, Failed: res.Failed, Lines: make([]bulkLineOutput, len(res.Lines))}
	for i, l := range res.Lines {
		line := bulkLineOutput{
			OperatorPaymentID: l.OperatorPaymentID.String(),
			Status:            string(l.Status),
			Reason:            l.Reason,
			DebtStatus:        string(l.DebtStatus),
		}
		if l.PaymentID != nil {
			line.PaymentID = l.PaymentID.String()
		}
		out.Lines[i] = line
	}
	return out
}

type deleteOutput struct {
	PaymentID        string `json:"payment_id"`
	MovementsDeleted int64  `json:"movements_deleted"`
	CashDeleted      int64  `json:"cash_deleted"`
	TasksDeleted     int64  `json:"tasks_deleted"`
	DebtReverted     bool   `json:"debt_reverted"`
	DebtStatus       string `json:"debt_status,omitempty"`
}

func newSettleBulkCommand() *cobra.Command {
	var (
		operator, currency, funding, fundingCurrency string
		rate, reference, date                        string
		lines                                        []string
	)

	cmd := &cobra.Command{
		Use:   "settle-bulk",
		Short: "Apply one funding transfer to several operator debts",
		Example: `  ledgerctl settle-bulk --operator 7d1c... --currency USD \
    --funding-account 5b2e... --funding-currency ARS --rate 1000 \
    --line 0f3a...=600 --line 9c4d...=400`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := buildBulkRequest(operator, currency, funding, fundingCurrency, rate, reference, date, lines)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Settlement.SettleBulk(ctx, req)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), toBulkOutput(res)); err != nil {
					return err
				}
				if res.Failed > 0 {
					return fmt.Errorf("%d of %d lines failed", res.Failed, len(res.Lines))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "operator id (required)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency of the debts (required)")
	cmd.Flags().StringVar(&funding, "funding-account", "", "financial account paying out (required)")
	cmd.Flags().StringVar(&fundingCurrency, "funding-currency", "", "currency of the funding account (required)")
	cmd.Flags().StringVar(&rate, "rate", "", "exchange rate when the currencies differ")
	cmd.Flags().StringVar(&reference, "reference", "", "transfer reference")
	cmd.Flags().StringVar(&date, "date", "", "transfer date, YYYY-MM-DD (default today)")
	cmd.Flags().StringArrayVar(&lines, "line", nil, "<operator-payment-id>=<amount>, repeatable (required)")
	for _, name := range []string{"operator", "currency", "funding-account", "funding-currency", "line"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func buildBulkRequest(operator, currency, funding, fundingCurrency, rate, reference, date string, lines []string) (settlement.BulkRequest, error) {
	var req settlement.BulkRequest
	var err error

	if req.OperatorID, err = parseID("operator", operator); err != nil {
		return req, err
	}
	if req.Currency, err = parseCurrency("currency", currency); err != nil {
		return req, err
	}
	if req.FundingAccountID, err = parseID("funding-account", funding); err != nil {
		return req, err
	}
	if req.FundingCurrency, err = parseCurrency("funding-currency", fundingCurrency); err != nil {
		return req, err
	}
	if req.ExchangeRate, err = parseOptionalRate(rate); err != nil {
		return req, err
	}
	if req.Date, err = parseDay("date", date); err != nil {
		return req, err
	}

	req.Lines = make([]settlement.BulkLine, 0, len(lines))
	for _, l := range lines {
		line, err := parseBulkLine(l)
		if err != nil {
			return req, err
		}
		req.Lines = append(req.Lines, line)
	}
	req.Reference = reference
	req.Actor = cliActor
	return req, nil
}

func newDeletePaymentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-payment <payment-id>",
		Short: "Delete a payment and reverse its postings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paymentID, err := parseID("payment-id", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Settlement.DeletePayment(ctx, paymentID, cliActor)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), deleteOutput{
					PaymentID:        res.PaymentID.String(),
					MovementsDeleted: res.MovementsDeleted,
					CashDeleted:      res.CashDeleted,
					TasksDeleted:     res.TasksDeleted,
					DebtReverted:     res.DebtReverted,
					DebtStatus:       string(res.DebtStatus),
				})
			})
		},
	}
}
