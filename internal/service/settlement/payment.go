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

type CreatePaymentRequest struct {
	OperationID       *uuid.UUID
	OperatorPaymentID *uuid.UUID
	OperatorID        *uuid.UUID
	PayerType         domain.PayerType
	Direction         domain.Direction
	Method            domain.PaymentMethod
	Amount            decimal.Decimal
	Currency          domain.Currency
	ExchangeRate      *decimal.Decimal
	DateDue           time.Time
	Reference         string
	Actor             Actor
}

func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	if err := validateCreatePayment(req); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	if req.OperationID != nil {
		if _, err := s.operations.GetByID(ctx, *req.OperationID); err != nil {
			return nil, fmt.Errorf("CreatePayment: operation: %w", err)
		}
	}

	operatorID := req.OperatorID
	if req.OperatorPaymentID != nil {
		debt, err := s.debts.GetByID(ctx, *req.OperatorPaymentID)
		if err != nil {
			return nil, fmt.Errorf("CreatePayment: operator payment: %w", err)
		}
		if debt.Currency != req.Currency {
			return nil, fmt.Errorf("CreatePayment: debt in %s, payment in %s: %w", debt.Currency, req.Currency, domain.ErrCurrencyMismatch)
		}
		if operatorID != nil && *operatorID != debt.OperatorID {
			return nil, fmt.Errorf("CreatePayment: %w", domain.ErrOperatorMismatch)
		}
		operatorID = &debt.OperatorID
	}

	now := s.now()
	dateDue := req.DateDue
	if dateDue.IsZero() {
		dateDue = s.today()
	}

	var rate *decimal.Decimal
	if !req.Currency.IsBase() {
		rate = req.ExchangeRate
	}

	p := &domain.Payment{
		ID:                uuid.New(),
		OperationID:       req.OperationID,
		OperatorPaymentID: req.OperatorPaymentID,
		OperatorID:        operatorID,
		PayerType:         req.PayerType,
		Direction:         req.Direction,
		Method:            req.Method,
		Amount:            req.Amount,
		Currency:          req.Currency,
		ExchangeRate:      rate,
		DateDue:           dateDue,
		Status:            domain.PaymentStatusPending,
		Reference:         req.Reference,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.payments.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}
	if err := s.writePaymentEvent(ctx, tx, p.ID, domain.PaymentEventTypeCreated, req.Actor, nil); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreatePayment: commit: %w", err)
	}

	logging.FromContext(ctx).Info("payment created",
		"payment_id", p.ID,
		"payer_type", p.PayerType,
		"direction", p.Direction,
		"amount", p.Amount.String(),
		"currency", p.Currency,
	)
	return p, nil
}

func validateCreatePayment(req CreatePaymentRequest) error {
	if !req.PayerType.IsValid() || !req.Direction.IsValid() {
		return fmt.Errorf("payer type %q, direction %q: %w", req.PayerType, req.Direction, domain.ErrInvalidRequest)
	}
	if !req.Currency.IsValid() {
		return domain.ErrInvalidCurrency
	}
	if !req.Method.IsValid() {
		return fmt.Errorf("%q: %w", req.Method, domain.ErrInvalidMethod)
	}
	if !req.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if req.ExchangeRate != nil && !req.ExchangeRate.IsPositive() {
		return domain.ErrInvalidRate
	}
	if req.OperatorPaymentID != nil && req.PayerType != domain.PayerTypeOperator {
		return fmt.Errorf("only operator payments settle an operator debt: %w", domain.ErrInvalidRequest)
	}
	return nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayment: %w", err)
	}
	return p, nil
}

func (s *Service) ListOperationPayments(ctx context.Context, operationID uuid.UUID) ([]domain.Payment, error) {
	payments, err := s.payments.ListByOperation(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("ListOperationPayments: %w", err)
	}
	return payments, nil
}

func (s *Service) PaymentMovements(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerMovement, error) {
	movements, err := s.movements.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("PaymentMovements: %w", err)
	}
	return movements, nil
}

// PaymentHistory returns the audit trail of a payment, oldest first. The
// trail outlives the payment, so deleted payments still have one.
func (s *Service) PaymentHistory(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	events, err := s.events.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("PaymentHistory: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("PaymentHistory: %w", domain.ErrNotFound)
	}
	return events, nil
}
