package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

type CreateDebtRequest struct {
	OperationID *uuid.UUID
	OperatorID  uuid.UUID
	Amount      decimal.Decimal
	Currency    domain.Currency
	DueDate     time.Time
	Notes       string
}

func (s *Service) CreateOperatorPayment(ctx context.Context, req CreateDebtRequest) (*domain.OperatorPayment, error) {
	if req.OperatorID == uuid.Nil {
		return nil, fmt.Errorf("CreateOperatorPayment: operator id: %w", domain.ErrInvalidRequest)
	}
	if !req.Currency.IsValid() {
		return nil, fmt.Errorf("CreateOperatorPayment: %w", domain.ErrInvalidCurrency)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("CreateOperatorPayment: %w", domain.ErrInvalidAmount)
	}
	if req.OperationID != nil {
		if _, err := s.operations.GetByID(ctx, *req.OperationID); err != nil {
			return nil, fmt.Errorf("CreateOperatorPayment: operation: %w", err)
		}
	}

	due := req.DueDate
	if due.IsZero() {
		due = s.today()
	}

	now := s.now()
	d := &domain.OperatorPayment{
		ID:          uuid.New(),
		OperationID: req.OperationID,
		OperatorID:  req.OperatorID,
		Amount:      req.Amount,
		PaidAmount:  decimal.Zero,
		Currency:    req.Currency,
		DueDate:     due,
		Status:      domain.DebtStatusPending,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.debts.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("CreateOperatorPayment: %w", err)
	}

	logging.FromContext(ctx).Info("operator debt created",
		"operator_payment_id", d.ID,
		"operator_id", d.OperatorID,
		"amount", d.Amount.String(),
		"currency", d.Currency,
	)
	return d, nil
}

func (s *Service) GetOperatorPayment(ctx context.Context, id uuid.UUID) (*domain.OperatorPayment, error) {
	d, err := s.debts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetOperatorPayment: %w", err)
	}
	return d, nil
}

func (s *Service) ListOperatorDebts(ctx context.Context, operatorID uuid.UUID, onlyOpen bool) ([]domain.OperatorPayment, error) {
	debts, err := s.debts.ListByOperator(ctx, operatorID, onlyOpen)
	if err != nil {
		return nil, fmt.Errorf("ListOperatorDebts: %w", err)
	}
	return debts, nil
}

func (s *Service) OperatorDebtBalance(ctx context.Context, id uuid.UUID) (*domain.DebtBalance, error) {
	d, err := s.debts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("OperatorDebtBalance: %w", err)
	}
	return &domain.DebtBalance{
		Amount:      d.Amount,
		Paid:        d.PaidAmount,
		Outstanding: d.Outstanding(),
		Currency:    d.Currency,
		Status:      d.DisplayStatus(s.today()),
	}, nil
}

// ReceivableBalance is what a customer still owes on an operation, in the
// operation's sale currency.
type ReceivableBalance struct {
	OperationID uuid.UUID
	Currency    domain.Currency
	Total       decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
}

func (s *Service) CustomerBalance(ctx context.Context, operationID uuid.UUID) (*ReceivableBalance, error) {
	op, err := s.operations.GetByID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("CustomerBalance: %w", err)
	}
	payments, err := s.payments.ListByOperation(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("CustomerBalance: %w", err)
	}

	paid := decimal.Zero
	for i := range payments {
		p := &payments[i]
		if p.Status != domain.PaymentStatusPaid || p.PayerType != domain.PayerTypeCustomer || p.Direction != domain.DirectionIncome {
			continue
		}
		amount, err := s.inCurrency(ctx, p, op.SaleCurrency)
		if err != nil {
			return nil, fmt.Errorf("CustomerBalance: payment %s: %w", p.ID, err)
		}
		paid = paid.Add(amount)
	}

	return &ReceivableBalance{
		OperationID: op.ID,
		Currency:    op.SaleCurrency,
		Total:       op.SaleAmount,
		Paid:        paid,
		Outstanding: op.SaleAmount.Sub(paid),
	}, nil
}

// inCurrency expresses a settled payment in target using the payment's own
// rate, or the rate of its pay date when none was recorded.
func (s *Service) inCurrency(ctx context.Context, p *domain.Payment, target domain.Currency) (decimal.Decimal, error) {
	if p.Currency == target {
		return p.Amount, nil
	}

	foreign := p.Currency
	if foreign.IsBase() {
		foreign = target
	}

	var rate decimal.Decimal
	if p.ExchangeRate != nil && p.ExchangeRate.IsPositive() {
		rate = *p.ExchangeRate
	} else {
		asOf := p.DateDue
		if p.DatePaid != nil {
			asOf = *p.DatePaid
		}
		resolved, err := s.rates.Resolve(ctx, foreign, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		rate = resolved.Value
	}

	if target.IsBase() {
		return p.Amount.Mul(rate).Round(s.places), nil
	}
	return p.Amount.Div(rate).Round(s.places), nil
}
