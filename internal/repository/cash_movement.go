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

const cashMovementColumns = `id, payment_id, account_id, type, amount, currency,
	movement_date, notes, created_at`

type CashMovementRepository struct {
	db *sql.DB
}

func NewCashMovementRepository(db *sql.DB) *CashMovementRepository {
	return &CashMovementRepository{db: db}
}

// CreateIfAbsent inserts the cash movement unless the payment already has one.
// The unique index on payment_id decides, so concurrent callers cannot both win.
func (r *CashMovementRepository) CreateIfAbsent(ctx context.Context, tx *sql.Tx, c *domain.CashMovement) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO cash_movements (
			id, payment_id, account_id, type, amount, currency, movement_date, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_id) DO NOTHING`,
		c.ID, c.PaymentID, c.AccountID, c.Type, c.Amount, c.Currency,
		c.MovementDate, c.Notes, c.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateIfAbsent: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *CashMovementRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.CashMovement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+cashMovementColumns+` FROM cash_movements WHERE payment_id = $1`, paymentID,
	)
	var c domain.CashMovement
	err := row.Scan(
		&c.ID, &c.PaymentID, &c.AccountID, &c.Type, &c.Amount, &c.Currency,
		&c.MovementDate, &c.Notes, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPaymentID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	return &c, nil
}

func (r *CashMovementRepository) DeleteByPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM cash_movements WHERE payment_id = $1`, paymentID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByPayment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByPayment: rows affected: %w", err)
	}
	return n, nil
}

// Balance is the cash box view of an account: INCOME minus EXPENSE.
func (r *CashMovementRepository) Balance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN type = 'INCOME' THEN amount ELSE -amount END), 0)
		FROM cash_movements WHERE account_id = $1`,
		accountID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", err)
	}
	return balance, nil
}
