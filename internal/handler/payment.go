package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/auth"
	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/service/settlement"
)

type paymentService interface {
	CreatePayment(ctx context.Context, req settlement.CreatePaymentRequest) (*domain.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	ListOperationPayments(ctx context.Context, operationID uuid.UUID) ([]domain.Payment, error)
	PaymentMovements(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerMovement, error)
	PaymentHistory(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error)
	SettlePayment(ctx context.Context, req settlement.SettleRequest) (*settlement.Outcome, error)
	DeletePayment(ctx context.Context, paymentID uuid.UUID, actor settlement.Actor) (*settlement.DeleteResult, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	OperationID       *uuid.UUID       `json:"operation_id"`
	OperatorPaymentID *uuid.UUID       `json:"operator_payment_id"`
	OperatorID        *uuid.UUID       `json:"operator_id"`
	PayerType         string           `json:"payer_type" validate:"required,oneof=CUSTOMER OPERATOR"`
	Direction         string           `json:"direction" validate:"required,oneof=INCOME EXPENSE"`
	Method            string           `json:"method" validate:"required,oneof=CASH TRANSFER MP USD_CASH"`
	Amount            decimal.Decimal  `json:"amount" validate:"positive"`
	Currency          string           `json:"currency" validate:"required,oneof=ARS USD"`
	ExchangeRate      *decimal.Decimal `json:"exchange_rate" validate:"omitempty,positive"`
	DateDue           string           `json:"date_due" validate:"omitempty,datetime=2006-01-02"`
	Reference         string           `json:"reference" validate:"max=200"`
}

type settleRequest struct {
	DatePaid         string     `json:"date_paid" validate:"omitempty,datetime=2006-01-02"`
	Reference        string     `json:"reference" validate:"max=200"`
	FundingAccountID *uuid.UUID `json:"funding_account_id"`
}

type paymentDTO struct {
	ID                uuid.UUID        `json:"id"`
	OperationID       *uuid.UUID       `json:"operation_id"`
	OperatorPaymentID *uuid.UUID       `json:"operator_payment_id,omitempty"`
	OperatorID        *uuid.UUID       `json:"operator_id,omitempty"`
	PayerType         string           `json:"payer_type"`
	Direction         string           `json:"direction"`
	Method            string           `json:"method"`
	Amount            decimal.Decimal  `json:"amount"`
	Currency          string           `json:"currency"`
	ExchangeRate      *decimal.Decimal `json:"exchange_rate"`
	DateDue           string           `json:"date_due"`
	DatePaid          *string          `json:"date_paid"`
	Status            string           `json:"status"`
	Reference         string           `json:"reference"`
	LedgerMovementID  *uuid.UUID       `json:"ledger_movement_id"`
	CreatedAt         time.Time        `json:"created_at"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	dto := paymentDTO{
		ID:                p.ID,
		OperationID:       p.OperationID,
		OperatorPaymentID: p.OperatorPaymentID,
		OperatorID:        p.OperatorID,
		PayerType:         string(p.PayerType),
		Direction:         string(p.Direction),
		Method:            string(p.Method),
		Amount:            p.Amount,
		Currency:          string(p.Currency),
		ExchangeRate:      p.ExchangeRate,
		DateDue:           p.DateDue.Format(time.DateOnly),
		Status:            string(p.DisplayStatus(time.Now().UTC())),
		Reference:         p.Reference,
		LedgerMovementID:  p.LedgerMovementID,
		CreatedAt:         p.CreatedAt,
	}
	if p.DatePaid != nil {
		d := p.DatePaid.Format(time.DateOnly)
		dto.DatePaid = &d
	}
	return dto
}

type movementDTO struct {
	ID                   uuid.UUID        `json:"id"`
	Type                 string           `json:"type"`
	Concept              string           `json:"concept"`
	Currency             string           `json:"currency"`
	AmountOriginal       decimal.Decimal  `json:"amount_original"`
	ExchangeRate         *decimal.Decimal `json:"exchange_rate"`
	AmountBaseEquivalent decimal.Decimal  `json:"amount_base_equivalent"`
	AccountID            uuid.UUID        `json:"account_id"`
	PaymentID            *uuid.UUID       `json:"payment_id,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

func toMovementDTOs(ms []domain.LedgerMovement) []movementDTO {
	out := make([]movementDTO, len(ms))
	for i, m := range ms {
		out[i] = movementDTO{
			ID:                   m.ID,
			Type:                 string(m.Type),
			Concept:              m.Concept,
			Currency:             string(m.Currency),
			AmountOriginal:       m.AmountOriginal,
			ExchangeRate:         m.ExchangeRate,
			AmountBaseEquivalent: m.AmountBaseEquivalent,
			AccountID:            m.AccountID,
			PaymentID:            m.PaymentID,
			CreatedAt:            m.CreatedAt,
		}
	}
	return out
}

type settleResponse struct {
	Payment          paymentDTO    `json:"payment"`
	Replayed         bool          `json:"replayed"`
	Backfilled       bool          `json:"backfilled,omitempty"`
	Degraded         bool          `json:"degraded,omitempty"`
	FundingAccountID *uuid.UUID    `json:"funding_account_id,omitempty"`
	BaseAmount       *string       `json:"base_amount,omitempty"`
	Movements        []movementDTO `json:"movements"`
	FXMovement       *movementDTO  `json:"fx_movement,omitempty"`
	FXDeferred       bool          `json:"fx_deferred,omitempty"`
}

type deleteResponse struct {
	PaymentID        uuid.UUID `json:"payment_id"`
	MovementsDeleted int64     `json:"movements_deleted"`
	CashDeleted      int64     `json:"cash_deleted"`
	TasksDeleted     int64     `json:"tasks_deleted"`
	DebtReverted     bool      `json:"debt_reverted"`
	DebtStatus       string    `json:"debt_status,omitempty"`
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	dateDue, _ := parseDate(req.DateDue)
	p, err := h.payments.CreatePayment(r.Context(), settlement.CreatePaymentRequest{
		OperationID:       req.OperationID,
		OperatorPaymentID: req.OperatorPaymentID,
		OperatorID:        req.OperatorID,
		PayerType:         domain.PayerType(req.PayerType),
		Direction:         domain.Direction(req.Direction),
		Method:            domain.PaymentMethod(req.Method),
		Amount:            req.Amount,
		Currency:          domain.Currency(req.Currency),
		ExchangeRate:      req.ExchangeRate,
		DateDue:           dateDue,
		Reference:         req.Reference,
		Actor:             actorFrom(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", p.ID))
	RespondSuccess(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	movements, err := h.payments.PaymentMovements(r.Context(), paymentID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"payment":   toPaymentDTO(p),
		"movements": toMovementDTOs(movements),
	})
}

type paymentEventDTO struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// History serves the payment's audit trail, including after deletion.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	events, err := h.payments.PaymentHistory(r.Context(), paymentID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentEventDTO, len(events))
	for i, e := range events {
		dtos[i] = paymentEventDTO{
			ID:        e.ID,
			EventType: string(e.EventType),
			Actor:     e.Actor,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentHandler) ListForOperation(w http.ResponseWriter, r *http.Request) {
	operationID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListOperationPayments(r.Context(), operationID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]paymentDTO, len(payments))
	for i := range payments {
		dtos[i] = toPaymentDTO(&payments[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *PaymentHandler) Settle(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req settleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	datePaid, _ := parseDate(req.DatePaid)

	out, err := h.payments.SettlePayment(r.Context(), settlement.SettleRequest{
		PaymentID:        paymentID,
		DatePaid:         datePaid,
		Reference:        req.Reference,
		FundingAccountID: req.FundingAccountID,
		Actor:            actorFrom(r),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("settlement failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	resp := settleResponse{
		Payment:    toPaymentDTO(out.Payment),
		Replayed:   out.Replayed,
		Backfilled: out.Backfilled,
		Degraded:   out.Degraded,
		Movements:  toMovementDTOs(out.Movements),
		FXDeferred: out.FXDeferred,
	}
	if !out.Replayed {
		base := out.BaseAmount.String()
		resp.BaseAmount = &base
		resp.FundingAccountID = &out.FundingAccountID
	}
	if out.FXMovement != nil {
		fx := toMovementDTOs([]domain.LedgerMovement{*out.FXMovement})[0]
		resp.FXMovement = &fx
	}
	RespondSuccess(w, http.StatusOK, resp)
}

func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.payments.DeletePayment(r.Context(), paymentID, actorFrom(r))
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment deletion failed", "payment_id", paymentID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, deleteResponse{
		PaymentID:        res.PaymentID,
		MovementsDeleted: res.MovementsDeleted,
		CashDeleted:      res.CashDeleted,
		TasksDeleted:     res.TasksDeleted,
		DebtReverted:     res.DebtReverted,
		DebtStatus:       string(res.DebtStatus),
	})
}

func actorFrom(r *http.Request) settlement.Actor {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return settlement.Actor{UserID: &id}
	}
	return settlement.Actor{Source: "api"}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return uuid.Nil, false
	}
	return id, true
}

// parseDate accepts an empty string as the zero time. Callers validate the
// format beforehand.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}
