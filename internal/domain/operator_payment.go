package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DebtStatus string

const (
	DebtStatusPending DebtStatus = "PENDING"
	DebtStatusPaid    DebtStatus = "PAID"

	// DebtStatusOverdue is derived from due_date and never stored.
	DebtStatusOverdue DebtStatus = "OVERDUE"
)

type OperatorPayment struct {
	ID          uuid.UUID
	OperationID *uuid.UUID
	OperatorID  uuid.UUID
	Amount      decimal.Decimal
	PaidAmount  decimal.Decimal
	Currency    Currency
	DueDate     time.Time
	Status      DebtStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d *OperatorPayment) Outstanding() decimal.Decimal {
	return d.Amount.Sub(d.PaidAmount)
}

func (d *OperatorPayment) IsOpen() bool {
	return d.Status == DebtStatusPending
}

func (d *OperatorPayment) DisplayStatus(today time.Time) DebtStatus {
	if d.Status == DebtStatusPending && d.DueDate.Before(truncateDay(today)) {
		return DebtStatusOverdue
	}
	return d.Status
}

// ApplySettlement returns the paid amount and status after settling amount.
// It does not mutate the receiver.
func (d *OperatorPayment) ApplySettlement(amount decimal.Decimal) (decimal.Decimal, DebtStatus, error) {
	if !amount.IsPositive() {
		return decimal.Zero, "", ErrInvalidAmount
	}
	paid := d.PaidAmount.Add(amount)
	if paid.GreaterThan(d.Amount) {
		return decimal.Zero, "", ErrOverpayment
	}
	if paid.Equal(d.Amount) {
		return paid, DebtStatusPaid, nil
	}
	return paid, DebtStatusPending, nil
}

// RevertSettlement backs amount out of the paid total, floored at zero.
func (d *OperatorPayment) RevertSettlement(amount decimal.Decimal) (decimal.Decimal, DebtStatus) {
	paid := d.PaidAmount.Sub(amount)
	if paid.IsNegative() {
		paid = decimal.Zero
	}
	if paid.Equal(d.Amount) {
		return paid, DebtStatusPaid
	}
	return paid, DebtStatusPending
}

type DebtBalance struct {
	Amount      decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
	Currency    Currency
	Status      DebtStatus
}
