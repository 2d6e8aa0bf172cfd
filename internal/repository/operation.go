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

const operationColumns = `id, file_code, customer_name, operator_id, seller_id, lead_id,
	sale_amount, sale_currency, sale_exchange_rate, cost_amount, cost_currency,
	cost_exchange_rate, created_at`

type OperationRepository struct {
	db *sql.DB
}

func NewOperationRepository(db *sql.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

func (r *OperationRepository) Create(ctx context.Context, op *domain.Operation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operations (
			id, file_code, customer_name, operator_id, seller_id, lead_id,
			sale_amount, sale_currency, sale_exchange_rate, cost_amount, cost_currency,
			cost_exchange_rate, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		op.ID, op.FileCode, op.CustomerName, nullUUID(op.OperatorID), nullUUID(op.SellerID), nullUUID(op.LeadID),
		op.SaleAmount, op.SaleCurrency, nullDecimal(op.SaleExchangeRate), op.CostAmount, op.CostCurrency,
		nullDecimal(op.CostExchangeRate), op.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Operation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, id,
	)

	var op domain.Operation
	var operatorID, sellerID, leadID uuid.NullUUID
	var saleRate, costRate decimal.NullDecimal
	err := row.Scan(
		&op.ID, &op.FileCode, &op.CustomerName, &operatorID, &sellerID, &leadID,
		&op.SaleAmount, &op.SaleCurrency, &saleRate, &op.CostAmount, &op.CostCurrency,
		&costRate, &op.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}

	op.OperatorID = uuidPtr(operatorID)
	op.SellerID = uuidPtr(sellerID)
	op.LeadID = uuidPtr(leadID)
	if saleRate.Valid {
		op.SaleExchangeRate = &saleRate.Decimal
	}
	if costRate.Valid {
		op.CostExchangeRate = &costRate.Decimal
	}
	return &op, nil
}
