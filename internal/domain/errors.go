package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrInvalidRate         = errors.New("exchange rate must be greater than zero")
	ErrRateRequired        = errors.New("exchange rate required for cross-currency settlement")
	ErrOverpayment         = errors.New("amount exceeds outstanding balance")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrAccountInactive     = errors.New("account inactive")
	ErrAccountTypeMismatch = errors.New("account type does not match payment method")
	ErrDebtNotOpen         = errors.New("debt is not pending")
	ErrOperatorMismatch    = errors.New("debt belongs to another operator")
	ErrRateUnavailable     = errors.New("no exchange rate available")
	ErrChartAccountMissing = errors.New("chart account not provisioned")
	ErrLockNotAcquired     = errors.New("could not acquire settlement lock")
	ErrDuplicate           = errors.New("duplicate record")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindDegradedConfiguration
	KindConflict
	KindRateUnavailable
)

// Kind classifies err into the engine's error taxonomy.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateUnavailable):
		return KindRateUnavailable
	case errors.Is(err, ErrChartAccountMissing):
		return KindDegradedConfiguration
	case errors.Is(err, ErrLockNotAcquired), errors.Is(err, ErrDuplicate):
		return KindConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidCurrency),
		errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrInvalidRate),
		errors.Is(err, ErrRateRequired),
		errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrAccountTypeMismatch),
		errors.Is(err, ErrDebtNotOpen),
		errors.Is(err, ErrOperatorMismatch):
		return KindValidation
	default:
		return KindInternal
	}
}
