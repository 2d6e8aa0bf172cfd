package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/service/settlement"
)

type debtService interface {
	CreateOperatorPayment(ctx context.Context, req settlement.CreateDebtRequest) (*domain.OperatorPayment, error)
	GetOperatorPayment(ctx context.Context, id uuid.UUID) (*domain.OperatorPayment, error)
	ListOperatorDebts(ctx context.Context, operatorID uuid.UUID, onlyOpen bool) ([]domain.OperatorPayment, error)
	OperatorDebtBalance(ctx context.Context, id uuid.UUID) (*domain.DebtBalance, error)
	SettleBulk(ctx context.Context, req settlement.BulkRequest) (*settlement.BulkResult, error)
	CustomerBalance(ctx context.Context, operationID uuid.UUID) (*settlement.ReceivableBalance, error)
}

type OperatorHandler struct {
	debts debtService
}

func NewOperatorHandler(debts debtService) *OperatorHandler {
	return &OperatorHandler{debts: debts}
}

type createDebtRequest struct {
	OperationID *uuid.UUID      `json:"operation_id"`
	OperatorID  uuid.UUID       `json:"operator_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"positive"`
	Currency    string          `json:"currency" validate:"required,oneof=ARS USD"`
	DueDate     string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       string          `json:"notes" validate:"max=500"`
}

type bulkLineRequest struct {
	OperatorPaymentID uuid.UUID       `json:"operator_payment_id" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"positive"`
}

type bulkSettleRequest struct {
	Currency         string            `json:"currency" validate:"required,oneof=ARS USD"`
	FundingAccountID uuid.UUID         `json:"funding_account_id" validate:"required"`
	FundingCurrency  string            `json:"funding_currency" validate:"required,oneof=ARS USD"`
	ExchangeRate     *decimal.Decimal  `json:"exchange_rate" validate:"omitempty,positive"`
	Reference        string            `json:"reference" validate:"max=200"`
	Date             string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Lines            []bulkLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type debtDTO struct {
	ID          uuid.UUID       `json:"id"`
	OperationID *uuid.UUID      `json:"operation_id"`
	OperatorID  uuid.UUID       `json:"operator_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Currency    string          `json:"currency"`
	DueDate     string          `json:"due_date"`
	Status      string          `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toDebtDTO(d *domain.OperatorPayment) debtDTO {
	return debtDTO{
		ID:          d.ID,
		OperationID: d.OperationID,
		OperatorID:  d.OperatorID,
		Amount:      d.Amount,
		PaidAmount:  d.PaidAmount,
		Outstanding: d.Outstanding(),
		Currency:    string(d.Currency),
		DueDate:     d.DueDate.Format(time.DateOnly),
		Status:      string(d.DisplayStatus(time.Now().UTC())),
		Notes:       d.Notes,
		CreatedAt:   d.CreatedAt,
	}
}

type bulkLineDTO struct {
	OperatorPaymentID uuid.UUID  `json:"operator_payment_id"`
	Status            string     `json:"status"`
	Reason            string     `json:"reason,omitempty"`
	PaymentID         *uuid.UUID `json:"payment_id,omitempty"`
	LedgerMovementID  *uuid.UUID `json:"ledger_movement_id,omitempty"`
	DebtStatus        string     `json:"debt_status,omitempty"`
}

type bulkResultDTO struct {
	Settled int           `json:"settled"`
	Failed  int           `json:"failed"`
	Lines   []bulkLineDTO `json:"lines"`
}

type debtBalanceDTO struct {
	DebtID      uuid.UUID       `json:"operator_payment_id"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Status      string          `json:"status"`
}

type receivableDTO struct {
	OperationID uuid.UUID       `json:"operation_id"`
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func (h *OperatorHandler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var req createDebtRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	dueDate, _ := parseDate(req.DueDate)

	d, err := h.debts.CreateOperatorPayment(r.Context(), settlement.CreateDebtRequest{
		OperationID: req.OperationID,
		OperatorID:  req.OperatorID,
		Amount:      req.Amount,
		Currency:    domain.Currency(req.Currency),
		DueDate:     dueDate,
		Notes:       req.Notes,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("operator debt creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/operator-payments/%s", d.ID))
	RespondSuccess(w, http.StatusCreated, toDebtDTO(d))
}

func (h *OperatorHandler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	d, err := h.debts.GetOperatorPayment(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toDebtDTO(d))
}

func (h *OperatorHandler) DebtBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	bal, err := h.debts.OperatorDebtBalance(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, debtBalanceDTO{
		DebtID:      id,
		Currency:    string(bal.Currency),
		Amount:      bal.Amount,
		Paid:        bal.Paid,
		Outstanding: bal.Outstanding,
		Status:      string(bal.Status),
	})
}

func (h *OperatorHandler) ListDebts(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	onlyOpen := false
	if v := r.URL.Query().Get("open"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "open", Message: "must be true or false"}})
			return
		}
		onlyOpen = parsed
	}

	debts, err := h.debts.ListOperatorDebts(r.Context(), operatorID, onlyOpen)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]debtDTO, len(debts))
	for i := range debts {
		dtos[i] = toDebtDTO(&debts[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *OperatorHandler) SettleBulk(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req bulkSettleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	date, _ := parseDate(req.Date)

	lines := make([]settlement.BulkLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = settlement.BulkLine{OperatorPaymentID: l.OperatorPaymentID, Amount: l.Amount}
	}

	res, err := h.debts.SettleBulk(r.Context(), settlement.BulkRequest{
		OperatorID:       operatorID,
		Currency:         domain.Currency(req.Currency),
		Lines:            lines,
		FundingAccountID: req.FundingAccountID,
		FundingCurrency:  domain.Currency(req.FundingCurrency),
		ExchangeRate:     req.ExchangeRate,
		Reference:        req.Reference,
		Date:             date,
		Actor:            actorFrom(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("bulk settlement rejected", "operator_id", operatorID, "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := bulkResultDTO{Settled: res.Settled, Failed: res.Failed, Lines: make([]bulkLineDTO, len(res.Lines))}
	for i, l := range res.Lines {
		dto.Lines[i] = bulkLineDTO{
			OperatorPaymentID: l.OperatorPaymentID,
			Status:            string(l.Status),
			Reason:            l.Reason,
			PaymentID:         l.PaymentID,
			LedgerMovementID:  l.LedgerMovementID,
			DebtStatus:        string(l.DebtStatus),
		}
	}

	status := http.StatusOK
	if res.Failed > 0 {
		status = http.StatusMultiStatus
	}
	RespondSuccess(w, status, dto)
}

func (h *OperatorHandler) OperationBalance(w http.ResponseWriter, r *http.Request) {
	operationID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	bal, err := h.debts.CustomerBalance(r.Context(), operationID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, receivableDTO{
		OperationID: bal.OperationID,
		Currency:    string(bal.Currency),
		Total:       bal.Total,
		Paid:        bal.Paid,
		Outstanding: bal.Outstanding,
	})
}
