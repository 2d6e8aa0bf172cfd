package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const chartAccountColumns = `id, code, name, category, subcategory, parent_id, is_active, created_at`

type ChartAccountRepository struct {
	db *sql.DB
}

func NewChartAccountRepository(db *sql.DB) *ChartAccountRepository {
	return &ChartAccountRepository{db: db}
}

func (r *ChartAccountRepository) GetByCode(ctx context.Context, tx *sql.Tx, code string) (*domain.ChartAccount, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+chartAccountColumns+` FROM chart_accounts WHERE code = $1`, code,
	)
	c, err := scanChartAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByCode: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByCode: %w", err)
	}
	return c, nil
}

// Upsert creates the chart entry or refreshes its name, category and state.
// The id of an existing entry is kept.
func (r *ChartAccountRepository) Upsert(ctx context.Context, tx *sql.Tx, c *domain.ChartAccount) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx,
		`INSERT INTO chart_accounts (id, code, name, category, subcategory, parent_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			parent_id = EXCLUDED.parent_id,
			is_active = EXCLUDED.is_active
		RETURNING id`,
		c.ID, c.Code, c.Name, c.Category, c.Subcategory, nullUUID(c.ParentID), c.IsActive, c.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("Upsert: %w", err)
	}
	return id, nil
}

func (r *ChartAccountRepository) List(ctx context.Context) ([]domain.ChartAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chartAccountColumns+` FROM chart_accounts ORDER BY code`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var accounts []domain.ChartAccount
	for rows.Next() {
		c, err := scanChartAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		accounts = append(accounts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return accounts, nil
}

func scanChartAccount(s scanner) (*domain.ChartAccount, error) {
	var c domain.ChartAccount
	var parentID uuid.NullUUID

	err := s.Scan(&c.ID, &c.Code, &c.Name, &c.Category, &c.Subcategory, &parentID, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ParentID = uuidPtr(parentID)
	return &c, nil
}
