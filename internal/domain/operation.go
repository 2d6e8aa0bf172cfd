package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operation is a sold trip. It is maintained by the back-office CRUD screens;
// the ledger only reads it for receivable totals and the rates assumed at
// sale and cost time.
type Operation struct {
	ID               uuid.UUID
	FileCode         string
	CustomerName     string
	OperatorID       *uuid.UUID
	SellerID         *uuid.UUID
	LeadID           *uuid.UUID
	SaleAmount       decimal.Decimal
	SaleCurrency     Currency
	SaleExchangeRate *decimal.Decimal
	CostAmount       decimal.Decimal
	CostCurrency     Currency
	CostExchangeRate *decimal.Decimal
	CreatedAt        time.Time
}
