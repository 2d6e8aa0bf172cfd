package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

type PaymentReceived struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	OperationID *uuid.UUID      `json:"operation_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Method      string          `json:"method"`
	DatePaid    time.Time       `json:"date_paid"`
	Reference   string          `json:"reference,omitempty"`
}

type Notifier interface {
	PaymentReceived(ctx context.Context, event PaymentReceived) error
}

// LogNotifier writes the event to the structured log.
type LogNotifier struct{}

func (LogNotifier) PaymentReceived(ctx context.Context, event PaymentReceived) error {
	logging.FromContext(ctx).Info("payment received",
		"payment_id", event.PaymentID,
		"amount", event.Amount.String(),
		"currency", event.Currency,
		"method", event.Method,
	)
	return nil
}
