package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementTypeIncome          MovementType = "INCOME"
	MovementTypeExpense         MovementType = "EXPENSE"
	MovementTypeFXGain          MovementType = "FX_GAIN"
	MovementTypeFXLoss          MovementType = "FX_LOSS"
	MovementTypeOperatorPayment MovementType = "OPERATOR_PAYMENT"
	MovementTypeCommission      MovementType = "COMMISSION"
)

func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeIncome, MovementTypeExpense, MovementTypeFXGain,
		MovementTypeFXLoss, MovementTypeOperatorPayment, MovementTypeCommission:
		return true
	default:
		return false
	}
}

// IsInflow reports whether the movement adds to the derived balance of its account.
func (t MovementType) IsInflow() bool {
	return t == MovementTypeIncome || t == MovementTypeFXGain
}

type LedgerMovement struct {
	ID                   uuid.UUID
	Type                 MovementType
	Concept              string
	Currency             Currency
	AmountOriginal       decimal.Decimal
	ExchangeRate         *decimal.Decimal
	AmountBaseEquivalent decimal.Decimal
	Method               string
	AccountID            uuid.UUID
	OperationID          *uuid.UUID
	PaymentID            *uuid.UUID
	OperatorPaymentID    *uuid.UUID
	LeadID               *uuid.UUID
	SellerID             *uuid.UUID
	OperatorID           *uuid.UUID
	CreatedAt            time.Time
	CreatedBy            *uuid.UUID
}

type CashMovement struct {
	ID           uuid.UUID
	PaymentID    uuid.UUID
	AccountID    uuid.UUID
	Type         MovementType
	Amount       decimal.Decimal
	Currency     Currency
	MovementDate time.Time
	Notes        string
	CreatedAt    time.Time
}
