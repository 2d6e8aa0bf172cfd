package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const exchangeRateColumns = `id, rate_date, currency, rate, source, created_at`

// Same-date ties resolve to the newest row, then the lowest source name.
const rateTieBreak = `ORDER BY rate_date DESC, created_at DESC, source ASC LIMIT 1`

type ExchangeRateRepository struct {
	db *sql.DB
}

func NewExchangeRateRepository(db *sql.DB) *ExchangeRateRepository {
	return &ExchangeRateRepository{db: db}
}

func (r *ExchangeRateRepository) Create(ctx context.Context, rate *domain.ExchangeRate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exchange_rates (id, rate_date, currency, rate, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rate.ID, rate.RateDate, rate.Currency, rate.Rate, rate.Source, rate.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ExchangeRateRepository) GetForDate(ctx context.Context, currency domain.Currency, date time.Time) (*domain.ExchangeRate, error) {
	return r.getOne(ctx, "GetForDate",
		`SELECT `+exchangeRateColumns+` FROM exchange_rates
		WHERE currency = $1 AND rate_date = $2::date `+rateTieBreak,
		currency, date,
	)
}

func (r *ExchangeRateRepository) GetLatestOnOrBefore(ctx context.Context, currency domain.Currency, date time.Time) (*domain.ExchangeRate, error) {
	return r.getOne(ctx, "GetLatestOnOrBefore",
		`SELECT `+exchangeRateColumns+` FROM exchange_rates
		WHERE currency = $1 AND rate_date <= $2::date `+rateTieBreak,
		currency, date,
	)
}

func (r *ExchangeRateRepository) GetLatest(ctx context.Context, currency domain.Currency) (*domain.ExchangeRate, error) {
	return r.getOne(ctx, "GetLatest",
		`SELECT `+exchangeRateColumns+` FROM exchange_rates WHERE currency = $1 `+rateTieBreak,
		currency,
	)
}

func (r *ExchangeRateRepository) getOne(ctx context.Context, op, query string, args ...any) (*domain.ExchangeRate, error) {
	var e domain.ExchangeRate
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&e.ID, &e.RateDate, &e.Currency, &e.Rate, &e.Source, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &e, nil
}
