package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/fx"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

type rateService interface {
	Resolve(ctx context.Context, currency domain.Currency, asOf time.Time) (fx.Rate, error)
	Record(ctx context.Context, rate *domain.ExchangeRate) error
}

type FXHandler struct {
	rates rateService
}

func NewFXHandler(rates rateService) *FXHandler {
	return &FXHandler{rates: rates}
}

type rateQuery struct {
	Currency string `json:"currency" validate:"required,oneof=USD"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type recordRateRequest struct {
	Currency string          `json:"currency" validate:"required,oneof=USD"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	Rate     decimal.Decimal `json:"rate" validate:"positive"`
	Source   string          `json:"source" validate:"max=50"`
}

type rateDTO struct {
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
	RateDate string          `json:"rate_date"`
	Source   string          `json:"source,omitempty"`
	Tier     string          `json:"tier,omitempty"`
}

func (h *FXHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	q := rateQuery{
		Currency: r.URL.Query().Get("currency"),
		Date:     r.URL.Query().Get("date"),
	}
	if !validateStruct(w, q) {
		return
	}

	asOf, _ := parseDate(q.Date)
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	rate, err := h.rates.Resolve(r.Context(), domain.Currency(q.Currency), asOf)
	if err != nil {
		logging.FromContext(r.Context()).Warn("fx rate lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, rateDTO{
		Currency: string(rate.Currency),
		Rate:     rate.Value,
		RateDate: rate.RateDate.Format(time.DateOnly),
		Source:   rate.Source,
		Tier:     string(rate.Tier),
	})
}

func (h *FXHandler) RecordRate(w http.ResponseWriter, r *http.Request) {
	var req recordRateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	date, _ := parseDate(req.Date)

	rate := &domain.ExchangeRate{
		RateDate: date,
		Currency: domain.Currency(req.Currency),
		Rate:     req.Rate,
		Source:   req.Source,
	}
	if err := h.rates.Record(r.Context(), rate); err != nil {
		logging.FromContext(r.Context()).Warn("recording fx rate failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, rateDTO{
		Currency: string(rate.Currency),
		Rate:     rate.Rate,
		RateDate: rate.RateDate.Format(time.DateOnly),
		Source:   rate.Source,
	})
}
