package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

type Tier string

const (
	TierIdentity Tier = "identity"
	TierExplicit Tier = "explicit"
	TierExact    Tier = "exact"
	TierLatest   Tier = "latest"
	TierFallback Tier = "fallback"
)

// Rate is a FOREIGN->BASE quote: units of ARS per unit of Currency.
type Rate struct {
	Currency domain.Currency
	Value    decimal.Decimal
	Tier     Tier
	RateDate time.Time
	Source   string
}

type rateRepository interface {
	Create(ctx context.Context, rate *domain.ExchangeRate) error
	GetForDate(ctx context.Context, currency domain.Currency, date time.Time) (*domain.ExchangeRate, error)
	GetLatestOnOrBefore(ctx context.Context, currency domain.Currency, date time.Time) (*domain.ExchangeRate, error)
	GetLatest(ctx context.Context, currency domain.Currency) (*domain.ExchangeRate, error)
}

type Options struct {
	RoundingPlaces int32
	AllowFallback  bool
	FallbackRate   decimal.Decimal
}

type Resolver struct {
	rates  rateRepository
	places int32

	allowFallback bool
	fallbackRate  decimal.Decimal
}

func NewResolver(rates rateRepository, opts Options) *Resolver {
	return &Resolver{
		rates:         rates,
		places:        opts.RoundingPlaces,
		allowFallback: opts.AllowFallback,
		fallbackRate:  opts.FallbackRate,
	}
}

// Resolve picks the rate for currency on asOf: identity for the base
// currency, then the exact date, then the latest known rate, then the
// configured fallback when it is enabled.
func (r *Resolver) Resolve(ctx context.Context, currency domain.Currency, asOf time.Time) (Rate, error) {
	if !currency.IsValid() {
		return Rate{}, fmt.Errorf("Resolve: %w", domain.ErrInvalidCurrency)
	}
	if currency.IsBase() {
		return Rate{Currency: currency, Value: decimal.NewFromInt(1), Tier: TierIdentity, RateDate: asOf}, nil
	}

	log := logging.FromContext(ctx).With("currency", currency, "as_of", asOf.Format(time.DateOnly))

	exact, err := r.rates.GetForDate(ctx, currency, asOf)
	if err == nil {
		return fromRow(exact, TierExact), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return Rate{}, fmt.Errorf("Resolve: %w", err)
	}

	latest, err := r.rates.GetLatestOnOrBefore(ctx, currency, asOf)
	if errors.Is(err, domain.ErrNotFound) {
		latest, err = r.rates.GetLatest(ctx, currency)
	}
	if err == nil {
		log.Info("using latest available exchange rate", "rate_date", latest.RateDate.Format(time.DateOnly), "source", latest.Source)
		return fromRow(latest, TierLatest), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return Rate{}, fmt.Errorf("Resolve: %w", err)
	}

	if r.allowFallback && r.fallbackRate.IsPositive() {
		log.Warn("degraded data quality: no exchange rate recorded, using configured fallback", "rate", r.fallbackRate.String())
		return Rate{Currency: currency, Value: r.fallbackRate, Tier: TierFallback, RateDate: asOf, Source: "fallback"}, nil
	}

	return Rate{}, fmt.Errorf("Resolve: %s on %s: %w", currency, asOf.Format(time.DateOnly), domain.ErrRateUnavailable)
}

// ToBase converts amount into the base currency. A non-nil explicit rate
// wins over the rate table and must be positive.
func (r *Resolver) ToBase(ctx context.Context, amount decimal.Decimal, currency domain.Currency, asOf time.Time, explicit *decimal.Decimal) (decimal.Decimal, Rate, error) {
	if !currency.IsValid() {
		return decimal.Zero, Rate{}, fmt.Errorf("ToBase: %w", domain.ErrInvalidCurrency)
	}
	if currency.IsBase() {
		return amount, Rate{Currency: currency, Value: decimal.NewFromInt(1), Tier: TierIdentity, RateDate: asOf}, nil
	}

	var rate Rate
	if explicit != nil {
		if !explicit.IsPositive() {
			return decimal.Zero, Rate{}, fmt.Errorf("ToBase: %w", domain.ErrInvalidRate)
		}
		rate = Rate{Currency: currency, Value: *explicit, Tier: TierExplicit, RateDate: asOf}
	} else {
		resolved, err := r.Resolve(ctx, currency, asOf)
		if err != nil {
			return decimal.Zero, Rate{}, fmt.Errorf("ToBase: %w", err)
		}
		rate = resolved
	}

	return amount.Mul(rate.Value).Round(r.places), rate, nil
}

func (r *Resolver) Record(ctx context.Context, rate *domain.ExchangeRate) error {
	if !rate.Currency.IsValid() || rate.Currency.IsBase() {
		return fmt.Errorf("Record: %w", domain.ErrInvalidCurrency)
	}
	if !rate.Rate.IsPositive() {
		return fmt.Errorf("Record: %w", domain.ErrInvalidRate)
	}
	if rate.Source == "" {
		rate.Source = "manual"
	}
	if rate.ID == uuid.Nil {
		rate.ID = uuid.New()
	}
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = time.Now().UTC()
	}
	if err := r.rates.Create(ctx, rate); err != nil {
		return fmt.Errorf("Record: %w", err)
	}
	return nil
}

func (r *Resolver) Latest(ctx context.Context, currency domain.Currency) (*domain.ExchangeRate, error) {
	rate, err := r.rates.GetLatest(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("Latest: %w", err)
	}
	return rate, nil
}

func fromRow(row *domain.ExchangeRate, tier Tier) Rate {
	return Rate{
		Currency: row.Currency,
		Value:    row.Rate,
		Tier:     tier,
		RateDate: row.RateDate,
		Source:   row.Source,
	}
}
