package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}

	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrency     = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Currency must be ARS or USD"}
	ErrInvalidMethod       = &AppError{http.StatusBadRequest, "INVALID_METHOD", "Unknown payment method"}
	ErrInvalidRate         = &AppError{http.StatusBadRequest, "INVALID_RATE", "Exchange rate must be greater than zero"}
	ErrRateRequired        = &AppError{http.StatusBadRequest, "RATE_REQUIRED", "Exchange rate required for cross-currency settlement"}
	ErrOverpayment         = &AppError{http.StatusUnprocessableEntity, "OVERPAYMENT", "Amount exceeds the outstanding balance"}
	ErrCurrencyMismatch    = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrAccountNotFound     = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrAccountInactive     = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_INACTIVE", "Account is inactive"}
	ErrAccountTypeMismatch = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_TYPE_MISMATCH", "Account type does not match the payment method"}
	ErrDebtNotOpen         = &AppError{http.StatusUnprocessableEntity, "DEBT_NOT_OPEN", "Operator debt is already settled"}
	ErrOperatorMismatch    = &AppError{http.StatusUnprocessableEntity, "OPERATOR_MISMATCH", "Debt belongs to another operator"}
	ErrRateUnavailable     = &AppError{http.StatusUnprocessableEntity, "RATE_UNAVAILABLE", "No exchange rate available for the payment date"}
	ErrSettlementBusy      = &AppError{http.StatusConflict, "SETTLEMENT_IN_PROGRESS", "Payment is being settled, please retry"}
	ErrDuplicate           = &AppError{http.StatusConflict, "DUPLICATE", "Record already exists"}
)
