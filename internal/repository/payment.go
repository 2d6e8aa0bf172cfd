package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const paymentColumns = `id, operation_id, operator_payment_id, operator_id, payer_type,
	direction, method, amount, currency, exchange_rate, date_due, date_paid,
	status, reference, ledger_movement_id, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, operation_id, operator_payment_id, operator_id, payer_type,
			direction, method, amount, currency, exchange_rate, date_due, date_paid,
			status, reference, ledger_movement_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, nullUUID(p.OperationID), nullUUID(p.OperatorPaymentID), nullUUID(p.OperatorID), p.PayerType,
		p.Direction, p.Method, p.Amount, p.Currency, nullDecimal(p.ExchangeRate), p.DateDue, p.DatePaid,
		p.Status, p.Reference, nullUUID(p.LedgerMovementID), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) ListByOperation(ctx context.Context, operationID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE operation_id = $1 ORDER BY date_due, created_at`, operationID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByOperation: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByOperation: scan: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByOperation: rows: %w", err)
	}
	return payments, nil
}

// MarkSettled flips the payment to PAID and records the movement that
// reduced its receivable or payable.
func (r *PaymentRepository) MarkSettled(ctx context.Context, tx *sql.Tx, id uuid.UUID, datePaid time.Time, reference string, ledgerMovementID uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments
		SET status = $1, date_paid = $2, reference = $3, ledger_movement_id = $4, updated_at = now()
		WHERE id = $5`,
		domain.PaymentStatusPaid, datePaid, reference, ledgerMovementID, id,
	)
	if err != nil {
		return fmt.Errorf("MarkSettled: %w", err)
	}
	return expectOneRow(res, "MarkSettled")
}

// UpdateSettlementInfo is the only write allowed on an already settled payment.
func (r *PaymentRepository) UpdateSettlementInfo(ctx context.Context, tx *sql.Tx, id uuid.UUID, datePaid time.Time, reference string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET date_paid = $1, reference = $2, updated_at = now() WHERE id = $3`,
		datePaid, reference, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateSettlementInfo: %w", err)
	}
	return expectOneRow(res, "UpdateSettlementInfo")
}

func (r *PaymentRepository) Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return expectOneRow(res, "Delete")
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var operationID, operatorPaymentID, operatorID, ledgerMovementID uuid.NullUUID
	var exchangeRate decimal.NullDecimal

	err := s.Scan(
		&p.ID, &operationID, &operatorPaymentID, &operatorID, &p.PayerType,
		&p.Direction, &p.Method, &p.Amount, &p.Currency, &exchangeRate, &p.DateDue, &p.DatePaid,
		&p.Status, &p.Reference, &ledgerMovementID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.OperationID = uuidPtr(operationID)
	p.OperatorPaymentID = uuidPtr(operatorPaymentID)
	p.OperatorID = uuidPtr(operatorID)
	p.LedgerMovementID = uuidPtr(ledgerMovementID)
	if exchangeRate.Valid {
		p.ExchangeRate = &exchangeRate.Decimal
	}

	return &p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func expectOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}
