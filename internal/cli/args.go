package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/service/settlement"
)

func parseID(name, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %q is not a uuid", name, s)
	}
	return id, nil
}

func parseOptionalID(name, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := parseID(name, s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseDay accepts YYYY-MM-DD; empty means the zero time, which the
// service reads as today.
func parseDay(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q is not a YYYY-MM-DD date", name, s)
	}
	return t, nil
}

func parseCurrency(name, s string) (domain.Currency, error) {
	c := domain.Currency(strings.ToUpper(s))
	if !c.IsValid() {
		return "", fmt.Errorf("%s: unsupported currency %q", name, s)
	}
	return c, nil
}

func parseOptionalRate(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return nil, fmt.Errorf("rate: %q must be a positive number", s)
	}
	return &d, nil
}

// parseBulkLine reads "<operator-payment-id>=<amount>".
func parseBulkLine(s string) (settlement.BulkLine, error) {
	idPart, amountPart, ok := strings.Cut(s, "=")
	if !ok {
		return settlement.BulkLine{}, fmt.Errorf("line %q: want <operator-payment-id>=<amount>", s)
	}
	id, err := parseID("line", strings.TrimSpace(idPart))
	if err != nil {
		return settlement.BulkLine{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(amountPart))
	if err != nil || !amount.IsPositive() {
		return settlement.BulkLine{}, fmt.Errorf("line %q: amount must be a positive number", s)
	}
	return settlement.BulkLine{OperatorPaymentID: id, Amount: amount}, nil
}
