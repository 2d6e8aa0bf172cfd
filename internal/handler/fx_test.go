package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/fx"
)

type mockRateService struct {
	asOf     time.Time
	recorded *domain.ExchangeRate
	err      error
}

func (m *mockRateService) Resolve(_ context.Context, currency domain.Currency, asOf time.Time) (fx.Rate, error) {
	m.asOf = asOf
	if m.err != nil {
		return fx.Rate{}, m.err
	}
	return fx.Rate{
		Currency: currency,
		Value:    decimal.NewFromInt(1050),
		Tier:     fx.TierLatest,
		RateDate: asOf.AddDate(0, 0, -2),
		Source:   "bna",
	}, nil
}

func (m *mockRateService) Record(_ context.Context, rate *domain.ExchangeRate) error {
	m.recorded = rate
	if rate.Source == "" {
		rate.Source = "manual"
	}
	return m.err
}

func TestGetRate(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		svcErr     error
		wantStatus int
		wantCode   string
		wantDate   string
	}{
		{
			name:       "explicit date",
			query:      "?currency=USD&date=2026-03-10",
			wantStatus: http.StatusOK,
			wantDate:   "2026-03-10",
		},
		{
			name:       "missing currency",
			query:      "?date=2026-03-10",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "base currency has no rate",
			query:      "?currency=ARS",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "bad date",
			query:      "?currency=USD&date=10-03-2026",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "no rate recorded",
			query:      "?currency=USD&date=2020-01-01",
			svcErr:     fmt.Errorf("Resolve: %w", domain.ErrRateUnavailable),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "RATE_UNAVAILABLE",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockRateService{err: tc.svcErr}
			h := NewFXHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/fx/rates"+tc.query, nil)
			rr := httptest.NewRecorder()
			h.GetRate(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decodeResponse(t, rr)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}

			assert.Equal(t, tc.wantDate, svc.asOf.Format(time.DateOnly))
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "1050", data["rate"])
			assert.Equal(t, "latest", data["tier"])
			assert.Equal(t, "2026-03-08", data["rate_date"])
		})
	}
}

func TestRecordRate(t *testing.T) {
	t.Run("stores the rate", func(t *testing.T) {
		svc := &mockRateService{}
		h := NewFXHandler(svc)

		body := `{"currency":"USD","date":"2026-03-10","rate":"1062.5"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fx/rates", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.RecordRate(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		require.NotNil(t, svc.recorded)
		assert.Equal(t, domain.CurrencyUSD, svc.recorded.Currency)
		assert.True(t, svc.recorded.Rate.Equal(decimal.RequireFromString("1062.5")))
		assert.Equal(t, "2026-03-10", svc.recorded.RateDate.Format(time.DateOnly))

		resp := decodeResponse(t, rr)
		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "manual", data["source"])
	})

	t.Run("rejects a zero rate", func(t *testing.T) {
		svc := &mockRateService{}
		h := NewFXHandler(svc)

		body := `{"currency":"USD","date":"2026-03-10","rate":"0"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/fx/rates", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.RecordRate(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Nil(t, svc.recorded)
	})
}
