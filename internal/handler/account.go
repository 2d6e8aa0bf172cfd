package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/service"
)

const (
	defaultMovementLimit = 50
	maxMovementLimit     = 500
)

type ledgerReader interface {
	Balance(ctx context.Context, accountID uuid.UUID) (*domain.AccountBalance, error)
	MovementsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerMovement, int, error)
}

type accountService interface {
	CreateAccount(ctx context.Context, req service.CreateAccountRequest) (*domain.FinancialAccount, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.FinancialAccount, error)
	ListAccounts(ctx context.Context) ([]domain.FinancialAccount, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.FinancialAccount, error)
}

type AccountHandler struct {
	accounts accountService
	ledger   ledgerReader
}

func NewAccountHandler(accounts accountService, ledger ledgerReader) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: ledger}
}

type createAccountRequest struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Type           string          `json:"type" validate:"required,oneof=CASH BANK MP USD"`
	Currency       string          `json:"currency" validate:"required,oneof=ARS USD"`
	BankName       string          `json:"bank_name" validate:"max=120"`
	AccountNumber  string          `json:"account_number" validate:"max=64"`
	CardLastFour   string          `json:"card_last_four" validate:"omitempty,len=4,numeric"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type updateAccountRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type accountDTO struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Currency       string          `json:"currency"`
	ChartAccountID *uuid.UUID      `json:"chart_account_id,omitempty"`
	BankName       *string         `json:"bank_name,omitempty"`
	AccountNumber  *string         `json:"account_number,omitempty"`
	CardLastFour   *string         `json:"card_last_four,omitempty"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toAccountDTO(a *domain.FinancialAccount) accountDTO {
	return accountDTO{
		ID:             a.ID,
		Name:           a.Name,
		Type:           string(a.Type),
		Currency:       string(a.Currency),
		ChartAccountID: a.ChartAccountID,
		BankName:       a.BankName,
		AccountNumber:  a.AccountNumber,
		CardLastFour:   a.CardLastFour,
		InitialBalance: a.InitialBalance,
		Active:         a.IsActive,
		CreatedAt:      a.CreatedAt,
	}
}

type balanceDTO struct {
	AccountID      uuid.UUID       `json:"account_id"`
	Currency       string          `json:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Inflows        decimal.Decimal `json:"inflows"`
	Outflows       decimal.Decimal `json:"outflows"`
	Balance        decimal.Decimal `json:"balance"`
}

type movementPage struct {
	Movements []movementDTO `json:"movements"`
	Total     int           `json:"total"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	a, err := h.accounts.CreateAccount(r.Context(), service.CreateAccountRequest{
		Name:           req.Name,
		Type:           domain.AccountType(req.Type),
		Currency:       domain.Currency(req.Currency),
		BankName:       req.BankName,
		AccountNumber:  req.AccountNumber,
		CardLastFour:   req.CardLastFour,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("account creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s", a.ID))
	RespondSuccess(w, http.StatusCreated, toAccountDTO(a))
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]accountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	a, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		respondAccountError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toAccountDTO(a))
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateAccountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	a, err := h.accounts.SetActive(r.Context(), accountID, *req.Active)
	if err != nil {
		logging.FromContext(r.Context()).Warn("account update failed", "account_id", accountID, "error", err)
		respondAccountError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toAccountDTO(a))
}

// respondAccountError reports a missing account in the path as 404 rather
// than the 422 used when a request body references one.
func respondAccountError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrAccountNotFound) {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}
	RespondDomainError(w, err)
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	bal, err := h.ledger.Balance(r.Context(), accountID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("balance lookup failed", "account_id", accountID, "error", err)
		respondAccountError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{
		AccountID:      bal.AccountID,
		Currency:       string(bal.Currency),
		InitialBalance: bal.InitialBalance,
		Inflows:        bal.Inflows,
		Outflows:       bal.Outflows,
		Balance:        bal.Balance,
	})
}

func (h *AccountHandler) Movements(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, offset, fields := pagination(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	movements, total, err := h.ledger.MovementsForAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, movementPage{
		Movements: toMovementDTOs(movements),
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func pagination(r *http.Request) (limit, offset int, fields []FieldError) {
	limit = defaultMovementLimit
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxMovementLimit {
			fields = append(fields, FieldError{Field: "limit", Message: "must be between 1 and 500"})
		} else {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "must be 0 or greater"})
		} else {
			offset = n
		}
	}
	return limit, offset, fields
}
