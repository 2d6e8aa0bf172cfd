package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const operatorPaymentColumns = `id, operation_id, operator_id, amount, paid_amount, currency,
	due_date, status, notes, created_at, updated_at`

type OperatorPaymentRepository struct {
	db *sql.DB
}

func NewOperatorPaymentRepository(db *sql.DB) *OperatorPaymentRepository {
	return &OperatorPaymentRepository{db: db}
}

func (r *OperatorPaymentRepository) Create(ctx context.Context, d *domain.OperatorPayment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operator_payments (
			id, operation_id, operator_id, amount, paid_amount, currency,
			due_date, status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, nullUUID(d.OperationID), d.OperatorID, d.Amount, d.PaidAmount, d.Currency,
		d.DueDate, d.Status, d.Notes, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OperatorPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OperatorPayment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+operatorPaymentColumns+` FROM operator_payments WHERE id = $1`, id,
	)
	d, err := scanOperatorPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return d, nil
}

func (r *OperatorPaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.OperatorPayment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+operatorPaymentColumns+` FROM operator_payments WHERE id = $1 FOR UPDATE`, id,
	)
	d, err := scanOperatorPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return d, nil
}

func (r *OperatorPaymentRepository) UpdatePaid(ctx context.Context, tx *sql.Tx, id uuid.UUID, paidAmount decimal.Decimal, status domain.DebtStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE operator_payments SET paid_amount = $1, status = $2, updated_at = now() WHERE id = $3`,
		paidAmount, status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdatePaid: %w", err)
	}
	return expectOneRow(res, "UpdatePaid")
}

func (r *OperatorPaymentRepository) ListByOperator(ctx context.Context, operatorID uuid.UUID, onlyOpen bool) ([]domain.OperatorPayment, error) {
	query := `SELECT ` + operatorPaymentColumns + ` FROM operator_payments WHERE operator_id = $1`
	args := []any{operatorID}
	if onlyOpen {
		query += ` AND status = $2`
		args = append(args, domain.DebtStatusPending)
	}
	query += ` ORDER BY due_date, created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListByOperator: %w", err)
	}
	defer rows.Close()

	var debts []domain.OperatorPayment
	for rows.Next() {
		d, err := scanOperatorPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByOperator: scan: %w", err)
		}
		debts = append(debts, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByOperator: rows: %w", err)
	}
	return debts, nil
}

func scanOperatorPayment(s scanner) (*domain.OperatorPayment, error) {
	var d domain.OperatorPayment
	var operationID uuid.NullUUID

	err := s.Scan(
		&d.ID, &operationID, &d.OperatorID, &d.Amount, &d.PaidAmount, &d.Currency,
		&d.DueDate, &d.Status, &d.Notes, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.OperationID = uuidPtr(operationID)
	return &d, nil
}
