package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ExchangeRate struct {
	ID        uuid.UUID
	RateDate  time.Time
	Currency  Currency
	Rate      decimal.Decimal
	Source    string
	CreatedAt time.Time
}
