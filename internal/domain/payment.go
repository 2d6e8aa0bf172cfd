package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayerType string

const (
	PayerTypeCustomer PayerType = "CUSTOMER"
	PayerTypeOperator PayerType = "OPERATOR"
)

func (p PayerType) IsValid() bool {
	return p == PayerTypeCustomer || p == PayerTypeOperator
}

type Direction string

const (
	DirectionIncome  Direction = "INCOME"
	DirectionExpense Direction = "EXPENSE"
)

func (d Direction) IsValid() bool {
	return d == DirectionIncome || d == DirectionExpense
}

// PaymentMethod is a closed set; free-text methods are rejected at input time.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodMP       PaymentMethod = "MP"
	PaymentMethodUSDCash  PaymentMethod = "USD_CASH"
)

var methodAccountTypes = map[PaymentMethod]AccountType{
	PaymentMethodCash:     AccountTypeCash,
	PaymentMethodTransfer: AccountTypeBank,
	PaymentMethodMP:       AccountTypeMP,
	PaymentMethodUSDCash:  AccountTypeUSD,
}

func (m PaymentMethod) IsValid() bool {
	_, ok := methodAccountTypes[m]
	return ok
}

// AccountType returns the funding bucket type a method settles through.
func (m PaymentMethod) AccountType() (AccountType, bool) {
	t, ok := methodAccountTypes[m]
	return t, ok
}

// MethodForAccountType is the inverse mapping, used when a bulk settlement
// only names the funding account.
func MethodForAccountType(t AccountType) PaymentMethod {
	for m, at := range methodAccountTypes {
		if at == t {
			return m
		}
	}
	return PaymentMethodTransfer
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"

	// PaymentStatusOverdue is never stored.
	PaymentStatusOverdue PaymentStatus = "OVERDUE"
)

type Payment struct {
	ID                uuid.UUID
	OperationID       *uuid.UUID
	OperatorPaymentID *uuid.UUID
	OperatorID        *uuid.UUID
	PayerType         PayerType
	Direction         Direction
	Method            PaymentMethod
	Amount            decimal.Decimal
	Currency          Currency
	ExchangeRate      *decimal.Decimal
	DateDue           time.Time
	DatePaid          *time.Time
	Status            PaymentStatus
	Reference         string
	LedgerMovementID  *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (p *Payment) IsSettled() bool {
	return p.Status == PaymentStatusPaid && p.LedgerMovementID != nil
}

func (p *Payment) DisplayStatus(today time.Time) PaymentStatus {
	if p.Status == PaymentStatusPending && p.DateDue.Before(truncateDay(today)) {
		return PaymentStatusOverdue
	}
	return p.Status
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
