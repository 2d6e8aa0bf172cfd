package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ChartCategory string

const (
	ChartCategoryAsset     ChartCategory = "ASSET"
	ChartCategoryLiability ChartCategory = "LIABILITY"
	ChartCategoryEquity    ChartCategory = "EQUITY"
	ChartCategoryResult    ChartCategory = "RESULT"
)

func (c ChartCategory) IsValid() bool {
	switch c {
	case ChartCategoryAsset, ChartCategoryLiability, ChartCategoryEquity, ChartCategoryResult:
		return true
	default:
		return false
	}
}

type ChartAccount struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Category    ChartCategory
	Subcategory *string
	ParentID    *uuid.UUID
	IsActive    bool
	CreatedAt   time.Time
}

type AccountType string

const (
	AccountTypeCash   AccountType = "CASH"
	AccountTypeBank   AccountType = "BANK"
	AccountTypeMP     AccountType = "MP"
	AccountTypeUSD    AccountType = "USD"
	AccountTypeLedger AccountType = "LEDGER"
)

type FinancialAccount struct {
	ID             uuid.UUID
	Name           string
	Type           AccountType
	Currency       Currency
	ChartAccountID *uuid.UUID
	BankName       *string
	AccountNumber  *string
	CardLastFour   *string
	InitialBalance decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
}

// AccountBalance is derived from ledger movements, never stored.
type AccountBalance struct {
	AccountID      uuid.UUID
	Currency       Currency
	InitialBalance decimal.Decimal
	Inflows        decimal.Decimal
	Outflows       decimal.Decimal
	Balance        decimal.Decimal
}
