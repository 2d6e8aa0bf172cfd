package fx

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

type fakeRates struct {
	rows []domain.ExchangeRate
	err  error
}

func (f *fakeRates) Create(_ context.Context, rate *domain.ExchangeRate) error {
	f.rows = append(f.rows, *rate)
	return nil
}

func (f *fakeRates) pick(match func(domain.ExchangeRate) bool) (*domain.ExchangeRate, error) {
	if f.err != nil {
		return nil, f.err
	}
	var hits []domain.ExchangeRate
	for _, r := range f.rows {
		if match(r) {
			hits = append(hits, r)
		}
	}
	if len(hits) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if !a.RateDate.Equal(b.RateDate) {
			return a.RateDate.After(b.RateDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Source < b.Source
	})
	return &hits[0], nil
}

func (f *fakeRates) GetForDate(_ context.Context, c domain.Currency, d time.Time) (*domain.ExchangeRate, error) {
	return f.pick(func(r domain.ExchangeRate) bool { return r.Currency == c && r.RateDate.Equal(d) })
}

func (f *fakeRates) GetLatestOnOrBefore(_ context.Context, c domain.Currency, d time.Time) (*domain.ExchangeRate, error) {
	return f.pick(func(r domain.ExchangeRate) bool { return r.Currency == c && !r.RateDate.After(d) })
}

func (f *fakeRates) GetLatest(_ context.Context, c domain.Currency) (*domain.ExchangeRate, error) {
	return f.pick(func(r domain.ExchangeRate) bool { return r.Currency == c })
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func usdRate(date, value, source string, created time.Time) domain.ExchangeRate {
	return domain.ExchangeRate{
		ID:        uuid.New(),
		RateDate:  day(date),
		Currency:  domain.CurrencyUSD,
		Rate:      decimal.RequireFromString(value),
		Source:    source,
		CreatedAt: created,
	}
}

func TestResolve(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		rows      []domain.ExchangeRate
		opts      Options
		currency  domain.Currency
		asOf      string
		wantValue string
		wantTier  Tier
		wantErr   error
	}{
		{
			name:      "base currency is identity",
			currency:  domain.CurrencyARS,
			asOf:      "2026-03-01",
			wantValue: "1",
			wantTier:  TierIdentity,
		},
		{
			name: "exact date wins over newer dates",
			rows: []domain.ExchangeRate{
				usdRate("2026-03-01", "1050", "bna", t0),
				usdRate("2026-03-05", "1100", "bna", t0),
			},
			currency:  domain.CurrencyUSD,
			asOf:      "2026-03-01",
			wantValue: "1050",
			wantTier:  TierExact,
		},
		{
			name: "latest on or before date",
			rows: []domain.ExchangeRate{
				usdRate("2026-02-20", "1000", "bna", t0),
				usdRate("2026-02-27", "1020", "bna", t0),
				usdRate("2026-03-10", "1200", "bna", t0),
			},
			currency:  domain.CurrencyUSD,
			asOf:      "2026-03-01",
			wantValue: "1020",
			wantTier:  TierLatest,
		},
		{
			name:      "only future rates falls back to latest overall",
			rows:      []domain.ExchangeRate{usdRate("2026-04-01", "1300", "bna", t0)},
			currency:  domain.CurrencyUSD,
			asOf:      "2026-03-01",
			wantValue: "1300",
			wantTier:  TierLatest,
		},
		{
			name: "same date tie takes newest row",
			rows: []domain.ExchangeRate{
				usdRate("2026-03-01", "1050", "bna", t0),
				usdRate("2026-03-01", "1060", "blue", t0.Add(time.Hour)),
			},
			currency:  domain.CurrencyUSD,
			asOf:      "2026-03-01",
			wantValue: "1060",
			wantTier:  TierExact,
		},
		{
			name: "same date and time tie takes lowest source",
			rows: []domain.ExchangeRate{
				usdRate("2026-03-01", "1060", "mep", t0),
				usdRate("2026-03-01", "1050", "bna", t0),
			},
			currency:  domain.CurrencyUSD,
			asOf:      "2026-03-01",
			wantValue: "1050",
			wantTier:  TierExact,
		},
		{
			name:     "no rate and fallback disabled",
			currency: domain.CurrencyUSD,
			asOf:     "2026-03-01",
			wantErr:  domain.ErrRateUnavailable,
		},
		{
			name:      "no rate and fallback enabled",
			opts:      Options{AllowFallback: true, FallbackRate: decimal.NewFromInt(1000)},
			currency:  domain.CurrencyUSD,
			asOf:      "2026-03-01",
			wantValue: "1000",
			wantTier:  TierFallback,
		},
		{
			name:     "unknown currency",
			currency: domain.Currency("EUR"),
			asOf:     "2026-03-01",
			wantErr:  domain.ErrInvalidCurrency,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(&fakeRates{rows: tc.rows}, tc.opts)

			rate, err := r.Resolve(context.Background(), tc.currency, day(tc.asOf))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantTier, rate.Tier)
			assert.True(t, rate.Value.Equal(decimal.RequireFromString(tc.wantValue)),
				"rate: got %s, want %s", rate.Value, tc.wantValue)
		})
	}
}

func TestResolve_RepositoryErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewResolver(&fakeRates{err: boom}, Options{AllowFallback: true, FallbackRate: decimal.NewFromInt(1000)})

	_, err := r.Resolve(context.Background(), domain.CurrencyUSD, day("2026-03-01"))
	require.ErrorIs(t, err, boom)
}

func TestToBase(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &fakeRates{rows: []domain.ExchangeRate{usdRate("2026-03-01", "1000", "bna", t0)}}
	r := NewResolver(repo, Options{RoundingPlaces: 2})
	ctx := context.Background()

	t.Run("base currency is exact", func(t *testing.T) {
		base, rate, err := r.ToBase(ctx, decimal.RequireFromString("1234.56"), domain.CurrencyARS, day("2026-03-01"), nil)
		require.NoError(t, err)
		assert.Equal(t, "1234.56", base.StringFixed(2))
		assert.Equal(t, TierIdentity, rate.Tier)
	})

	t.Run("table rate", func(t *testing.T) {
		base, rate, err := r.ToBase(ctx, decimal.NewFromInt(1000), domain.CurrencyUSD, day("2026-03-01"), nil)
		require.NoError(t, err)
		assert.Equal(t, "1000000.00", base.StringFixed(2))
		assert.Equal(t, TierExact, rate.Tier)
	})

	t.Run("explicit rate wins", func(t *testing.T) {
		explicit := decimal.RequireFromString("1234.5")
		base, rate, err := r.ToBase(ctx, decimal.RequireFromString("10.01"), domain.CurrencyUSD, day("2026-03-01"), &explicit)
		require.NoError(t, err)
		assert.Equal(t, "12357.35", base.StringFixed(2))
		assert.Equal(t, TierExplicit, rate.Tier)
	})

	t.Run("non-positive explicit rate", func(t *testing.T) {
		zero := decimal.Zero
		_, _, err := r.ToBase(ctx, decimal.NewFromInt(1), domain.CurrencyUSD, day("2026-03-01"), &zero)
		require.ErrorIs(t, err, domain.ErrInvalidRate)
	})

	t.Run("round trip within one minor unit", func(t *testing.T) {
		amount := decimal.RequireFromString("777.77")
		base, rate, err := r.ToBase(ctx, amount, domain.CurrencyUSD, day("2026-03-01"), nil)
		require.NoError(t, err)
		back := base.Div(rate.Value).Round(2)
		assert.True(t, back.Sub(amount).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")))
	})
}

func TestRecord(t *testing.T) {
	repo := &fakeRates{}
	r := NewResolver(repo, Options{})
	ctx := context.Background()

	err := r.Record(ctx, &domain.ExchangeRate{ID: uuid.New(), RateDate: day("2026-03-01"), Currency: domain.CurrencyUSD, Rate: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	require.Len(t, repo.rows, 1)
	assert.Equal(t, "manual", repo.rows[0].Source)

	err = r.Record(ctx, &domain.ExchangeRate{Currency: domain.CurrencyARS, Rate: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, domain.ErrInvalidCurrency)

	err = r.Record(ctx, &domain.ExchangeRate{Currency: domain.CurrencyUSD, Rate: decimal.Zero})
	require.ErrorIs(t, err, domain.ErrInvalidRate)
}
