package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const accountColumns = `id, name, type, currency, chart_account_id, bank_name,
	account_number, card_last_four, initial_balance, is_active, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM financial_accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

// GetLinked returns the account attached to a chart entry in currency.
func (r *AccountRepository) GetLinked(ctx context.Context, tx *sql.Tx, chartAccountID uuid.UUID, currency domain.Currency) (*domain.FinancialAccount, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM financial_accounts
		WHERE chart_account_id = $1 AND currency = $2`,
		chartAccountID, currency,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetLinked: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetLinked: %w", err)
	}
	return a, nil
}

// GetDefaultBucket returns the oldest active account of the given type and
// currency.
func (r *AccountRepository) GetDefaultBucket(ctx context.Context, tx *sql.Tx, accountType domain.AccountType, currency domain.Currency) (*domain.FinancialAccount, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM financial_accounts
		WHERE type = $1 AND currency = $2 AND is_active
		ORDER BY created_at, id LIMIT 1`,
		accountType, currency,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetDefaultBucket: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetDefaultBucket: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, a *domain.FinancialAccount) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO financial_accounts (
			id, name, type, currency, chart_account_id, bank_name,
			account_number, card_last_four, initial_balance, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Name, a.Type, a.Currency, nullUUID(a.ChartAccountID), a.BankName,
		a.AccountNumber, a.CardLastFour, a.InitialBalance, a.IsActive, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// CreateLinkedIfAbsent inserts a chart-linked account unless one already
// exists for the same chart entry and currency.
func (r *AccountRepository) CreateLinkedIfAbsent(ctx context.Context, tx *sql.Tx, a *domain.FinancialAccount) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO financial_accounts (
			id, name, type, currency, chart_account_id, initial_balance, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chart_account_id, currency) WHERE chart_account_id IS NOT NULL DO NOTHING`,
		a.ID, a.Name, a.Type, a.Currency, nullUUID(a.ChartAccountID),
		a.InitialBalance, a.IsActive, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateLinkedIfAbsent: %w", err)
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.FinancialAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM financial_accounts ORDER BY type, currency, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var accounts []domain.FinancialAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return accounts, nil
}

func scanAccount(s scanner) (*domain.FinancialAccount, error) {
	var a domain.FinancialAccount
	var chartAccountID uuid.NullUUID

	err := s.Scan(
		&a.ID, &a.Name, &a.Type, &a.Currency, &chartAccountID, &a.BankName,
		&a.AccountNumber, &a.CardLastFour, &a.InitialBalance, &a.IsActive, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ChartAccountID = uuidPtr(chartAccountID)
	return &a, nil
}

func (r *AccountRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE financial_accounts SET is_active = $2 WHERE id = $1`, id, active,
	)
	if err != nil {
		return fmt.Errorf("SetActive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetActive: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SetActive: %w", domain.ErrAccountNotFound)
	}
	return nil
}
