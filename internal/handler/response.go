package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// domainErrors is checked in order; the first sentinel matched wins.
var domainErrors = []struct {
	err    error
	appErr *AppError
}{
	{domain.ErrAccountNotFound, ErrAccountNotFound},
	{domain.ErrNotFound, ErrResourceNotFound},
	{domain.ErrRateUnavailable, ErrRateUnavailable},
	{domain.ErrLockNotAcquired, ErrSettlementBusy},
	{domain.ErrDuplicate, ErrDuplicate},
	{domain.ErrOverpayment, ErrOverpayment},
	{domain.ErrCurrencyMismatch, ErrCurrencyMismatch},
	{domain.ErrAccountInactive, ErrAccountInactive},
	{domain.ErrAccountTypeMismatch, ErrAccountTypeMismatch},
	{domain.ErrDebtNotOpen, ErrDebtNotOpen},
	{domain.ErrOperatorMismatch, ErrOperatorMismatch},
	{domain.ErrRateRequired, ErrRateRequired},
	{domain.ErrInvalidRate, ErrInvalidRate},
	{domain.ErrInvalidAmount, ErrInvalidAmount},
	{domain.ErrInvalidCurrency, ErrInvalidCurrency},
	{domain.ErrInvalidMethod, ErrInvalidMethod},
	{domain.ErrInvalidRequest, ErrInvalidRequest},
}

func RespondDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			RespondAppError(w, m.appErr, nil)
			return
		}
	}

	if domain.Kind(err) == domain.KindValidation {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	slog.Error("unhandled domain error", "error", err)
	RespondAppError(w, ErrInternalError, nil)
}
