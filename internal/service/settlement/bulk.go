package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/lock"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/service/accounts"
)

type BulkLine struct {
	OperatorPaymentID uuid.UUID
	Amount            decimal.Decimal
}

type BulkRequest struct {
	OperatorID       uuid.UUID
	Currency         domain.Currency
	Lines            []BulkLine
	FundingAccountID uuid.UUID
	FundingCurrency  domain.Currency
	ExchangeRate     *decimal.Decimal
	Reference        string
	Date             time.Time
	Actor            Actor
}

type LineStatus string

const (
	LineStatusSettled LineStatus = "settled"
	LineStatusFailed  LineStatus = "failed"
)

type BulkLineResult struct {
	OperatorPaymentID uuid.UUID
	Status            LineStatus
	Reason            string
	Err               error
	PaymentID         *uuid.UUID
	LedgerMovementID  *uuid.UUID
	DebtStatus        domain.DebtStatus
}

type BulkResult struct {
	Lines   []BulkLineResult
	Settled int
	Failed  int
}

// SettleBulk applies one funding transfer to several debts of the same
// operator. Lines run in the caller's order, each in its own transaction,
// so a rejected line never rolls back the ones before it.
func (s *Service) SettleBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	ctx, log := logging.With(ctx, "operator_id", req.OperatorID, "funding_account_id", req.FundingAccountID)

	funding, err := s.validateBulk(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("SettleBulk: %w", err)
	}
	method := domain.MethodForAccountType(funding.Type)
	if err := accounts.CheckFunding(funding, method, req.FundingCurrency); err != nil {
		return nil, fmt.Errorf("SettleBulk: funding account: %w", err)
	}

	date := req.Date
	if date.IsZero() {
		date = s.today()
	}

	result := &BulkResult{Lines: make([]BulkLineResult, 0, len(req.Lines))}
	for _, line := range req.Lines {
		lr := s.settleLine(ctx, req, line, funding, method, date)
		if lr.Status == LineStatusSettled {
			result.Settled++
		} else {
			result.Failed++
			log.Warn("bulk line rejected", "operator_payment_id", line.OperatorPaymentID, "reason", lr.Reason)
		}
		result.Lines = append(result.Lines, lr)
	}

	log.Info("bulk settlement completed", "settled", result.Settled, "failed", result.Failed)
	return result, nil
}

func (s *Service) validateBulk(ctx context.Context, req BulkRequest) (*domain.FinancialAccount, error) {
	if req.OperatorID == uuid.Nil {
		return nil, fmt.Errorf("validateBulk: operator id: %w", domain.ErrInvalidRequest)
	}
	if !req.Currency.IsValid() || !req.FundingCurrency.IsValid() {
		return nil, fmt.Errorf("validateBulk: %w", domain.ErrInvalidCurrency)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("validateBulk: no lines: %w", domain.ErrInvalidRequest)
	}
	if req.FundingCurrency != req.Currency {
		if req.ExchangeRate == nil {
			return nil, fmt.Errorf("validateBulk: %w", domain.ErrRateRequired)
		}
		if !req.ExchangeRate.IsPositive() {
			return nil, fmt.Errorf("validateBulk: %w", domain.ErrInvalidRate)
		}
	}

	funding, err := s.accounts.GetByID(ctx, req.FundingAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("validateBulk: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("validateBulk: %w", err)
	}
	return funding, nil
}

func (s *Service) settleLine(ctx context.Context, req BulkRequest, line BulkLine, funding *domain.FinancialAccount, method domain.PaymentMethod, date time.Time) BulkLineResult {
	lr := BulkLineResult{OperatorPaymentID: line.OperatorPaymentID, Status: LineStatusFailed}
	fail := func(err error) BulkLineResult {
		lr.Err = err
		lr.Reason = err.Error()
		return lr
	}

	if !line.Amount.IsPositive() {
		return fail(domain.ErrInvalidAmount)
	}

	ctx, _ = logging.With(ctx, "operator_payment_id", line.OperatorPaymentID)
	release, err := s.locker.Acquire(ctx, lock.OperatorPaymentKey(line.OperatorPaymentID))
	if err != nil {
		return fail(err)
	}
	defer release()

	out, err := s.settleLineLocked(ctx, req, line, funding, method, date)
	if err != nil {
		return fail(err)
	}

	s.afterSettle(ctx, out.outcome)

	lr.Status = LineStatusSettled
	lr.PaymentID = &out.outcome.Payment.ID
	lr.LedgerMovementID = out.outcome.Payment.LedgerMovementID
	lr.DebtStatus = out.debtStatus
	return lr
}

type lineOutcome struct {
	outcome    *Outcome
	debtStatus domain.DebtStatus
}

func (s *Service) settleLineLocked(ctx context.Context, req BulkRequest, line BulkLine, funding *domain.FinancialAccount, method domain.PaymentMethod, date time.Time) (*lineOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settleLine: begin tx: %w", err)
	}
	defer tx.Rollback()

	debt, err := s.debts.GetForUpdate(ctx, tx, line.OperatorPaymentID)
	if err != nil {
		return nil, fmt.Errorf("settleLine: %w", err)
	}
	if debt.OperatorID != req.OperatorID {
		return nil, fmt.Errorf("settleLine: %w", domain.ErrOperatorMismatch)
	}
	if !debt.IsOpen() {
		return nil, fmt.Errorf("settleLine: %w", domain.ErrDebtNotOpen)
	}
	if debt.Currency != req.Currency {
		return nil, fmt.Errorf("settleLine: debt in %s: %w", debt.Currency, domain.ErrCurrencyMismatch)
	}
	if _, _, err := debt.ApplySettlement(line.Amount); err != nil {
		return nil, fmt.Errorf("settleLine: %w", err)
	}

	leg, paymentRate := fundingLegFor(req, line.Amount, funding, s.places)

	now := s.now()
	operatorID := debt.OperatorID
	p := &domain.Payment{
		ID:                uuid.New(),
		OperationID:       debt.OperationID,
		OperatorPaymentID: &debt.ID,
		OperatorID:        &operatorID,
		PayerType:         domain.PayerTypeOperator,
		Direction:         domain.DirectionExpense,
		Method:            method,
		Amount:            line.Amount,
		Currency:          req.Currency,
		ExchangeRate:      paymentRate,
		DateDue:           debt.DueDate,
		Status:            domain.PaymentStatusPending,
		Reference:         req.Reference,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.payments.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("settleLine: %w", err)
	}
	if err := s.writePaymentEvent(ctx, tx, p.ID, domain.PaymentEventTypeCreated, req.Actor, nil); err != nil {
		return nil, fmt.Errorf("settleLine: %w", err)
	}

	res, err := s.applySettlement(ctx, tx, p, postingOptions{
		datePaid:  date,
		reference: req.Reference,
		actor:     req.Actor,
		funding:   leg,
		debt:      debt,
		touchDebt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("settleLine: %w", err)
	}

	if err := s.payments.MarkSettled(ctx, tx, p.ID, date, req.Reference, res.primary.ID); err != nil {
		return nil, fmt.Errorf("settleLine: %w", err)
	}
	if err := s.writePaymentEvent(ctx, tx, p.ID, domain.PaymentEventTypeSettled, req.Actor, newSettledPayload(res, false)); err != nil {
		return nil, fmt.Errorf("settleLine: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("settleLine: commit: %w", err)
	}

	p.Status = domain.PaymentStatusPaid
	p.DatePaid = &date
	p.LedgerMovementID = &res.primary.ID

	return &lineOutcome{
		outcome: &Outcome{
			Payment:          p,
			Movements:        res.movements,
			FundingAccountID: funding.ID,
			BaseAmount:       res.baseAmount,
			Degraded:         res.degraded,
		},
		debtStatus: res.debtStatus,
	}, nil
}

// fundingLegFor converts a line amount into the funding currency with the
// batch rate, expressed as ARS per USD. It also returns the rate the debt
// side is booked at when the debt is foreign.
func fundingLegFor(req BulkRequest, amount decimal.Decimal, funding *domain.FinancialAccount, places int32) (*fundingLeg, *decimal.Decimal) {
	if req.FundingCurrency == req.Currency {
		var rate *decimal.Decimal
		if !req.Currency.IsBase() {
			rate = req.ExchangeRate
		}
		return &fundingLeg{account: funding, currency: req.FundingCurrency, amount: amount, rate: rate}, rate
	}

	rate := *req.ExchangeRate
	if req.Currency.IsBase() {
		// ARS debt paid from a USD account.
		return &fundingLeg{
			account:  funding,
			currency: req.FundingCurrency,
			amount:   amount.Div(rate).Round(places),
			rate:     &rate,
		}, nil
	}
	// USD debt paid from an ARS account.
	return &fundingLeg{
		account:  funding,
		currency: req.FundingCurrency,
		amount:   amount.Mul(rate).Round(places),
	}, &rate
}
