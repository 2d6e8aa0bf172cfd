package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentEventType names an entry in a payment's audit trail.
type PaymentEventType string

const (
	PaymentEventTypeCreated            PaymentEventType = "created"
	PaymentEventTypeSettled            PaymentEventType = "settled"
	PaymentEventTypeSettlementReplayed PaymentEventType = "settlement_replayed"
	PaymentEventTypeFXPosted           PaymentEventType = "fx_posted"
	PaymentEventTypeDeleted            PaymentEventType = "deleted"
)

// PaymentEvent is append-only and is not removed with its payment.
type PaymentEvent struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	EventType PaymentEventType
	// Actor is "user:<id>", the calling surface ("cli", "api") or "system".
	Actor     string
	Payload   json.RawMessage
	CreatedAt time.Time
}
