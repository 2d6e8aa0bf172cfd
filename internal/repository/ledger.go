package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const ledgerColumns = `id, type, concept, currency, amount_original, exchange_rate,
	amount_base_equivalent, method, account_id, operation_id, payment_id,
	operator_payment_id, lead_id, seller_id, operator_id, created_at, created_by`

// LedgerRepository has no update path; movements are append-only and only
// removed by the payment deletion cascade.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, m *domain.LedgerMovement) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_movements (
			id, type, concept, currency, amount_original, exchange_rate,
			amount_base_equivalent, method, account_id, operation_id, payment_id,
			operator_payment_id, lead_id, seller_id, operator_id, created_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		m.ID, m.Type, m.Concept, m.Currency, m.AmountOriginal, nullDecimal(m.ExchangeRate),
		m.AmountBaseEquivalent, m.Method, m.AccountID, nullUUID(m.OperationID), nullUUID(m.PaymentID),
		nullUUID(m.OperatorPaymentID), nullUUID(m.LeadID), nullUUID(m.SellerID), nullUUID(m.OperatorID),
		m.CreatedAt, nullUUID(m.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerMovement, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_movements WHERE account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_movements
		WHERE account_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: %w", err)
	}
	defer rows.Close()

	movements, err := collectMovements(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: %w", err)
	}
	return movements, total, nil
}

func (r *LedgerRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerMovement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_movements
		WHERE payment_id = $1 ORDER BY created_at, id`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	defer rows.Close()

	movements, err := collectMovements(rows)
	if err != nil {
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	return movements, nil
}

// ExistsForPayment reports whether the payment already has a movement of any
// of the given types. It reads through tx so it sees uncommitted postings.
func (r *LedgerRepository) ExistsForPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID, types ...domain.MovementType) (bool, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM ledger_movements WHERE payment_id = $1 AND type = ANY($2)
		)`,
		paymentID, pq.Array(names),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ExistsForPayment: %w", err)
	}
	return exists, nil
}

func (r *LedgerRepository) DeleteByPayment(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM ledger_movements WHERE payment_id = $1`, paymentID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByPayment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByPayment: rows affected: %w", err)
	}
	return n, nil
}

// Totals aggregates the movements of an account into inflows and outflows
// in the account's own currency.
func (r *LedgerRepository) Totals(ctx context.Context, accountID uuid.UUID) (inflows, outflows decimal.Decimal, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(amount_original) FILTER (WHERE type IN ('INCOME', 'FX_GAIN')), 0),
			COALESCE(SUM(amount_original) FILTER (WHERE type IN ('EXPENSE', 'OPERATOR_PAYMENT', 'FX_LOSS', 'COMMISSION')), 0)
		FROM ledger_movements WHERE account_id = $1`,
		accountID,
	).Scan(&inflows, &outflows)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("Totals: %w", err)
	}
	return inflows, outflows, nil
}

func collectMovements(rows *sql.Rows) ([]domain.LedgerMovement, error) {
	var movements []domain.LedgerMovement
	for rows.Next() {
		m, err := scanLedgerMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		movements = append(movements, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return movements, nil
}

func scanLedgerMovement(s scanner) (*domain.LedgerMovement, error) {
	var m domain.LedgerMovement
	var exchangeRate decimal.NullDecimal
	var operationID, paymentID, operatorPaymentID, leadID, sellerID, operatorID, createdBy uuid.NullUUID

	err := s.Scan(
		&m.ID, &m.Type, &m.Concept, &m.Currency, &m.AmountOriginal, &exchangeRate,
		&m.AmountBaseEquivalent, &m.Method, &m.AccountID, &operationID, &paymentID,
		&operatorPaymentID, &leadID, &sellerID, &operatorID, &m.CreatedAt, &createdBy,
	)
	if err != nil {
		return nil, err
	}

	if exchangeRate.Valid {
		m.ExchangeRate = &exchangeRate.Decimal
	}
	m.OperationID = uuidPtr(operationID)
	m.PaymentID = uuidPtr(paymentID)
	m.OperatorPaymentID = uuidPtr(operatorPaymentID)
	m.LeadID = uuidPtr(leadID)
	m.SellerID = uuidPtr(sellerID)
	m.OperatorID = uuidPtr(operatorID)
	m.CreatedBy = uuidPtr(createdBy)
	return &m, nil
}
