package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/lock"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

type DeleteResult struct {
	PaymentID        uuid.UUID
	MovementsDeleted int64
	CashDeleted      int64
	TasksDeleted     int64
	DebtReverted     bool
	DebtStatus       domain.DebtStatus
}

type deletedPayload struct {
	MovementsDeleted int64   `json:"movements_deleted"`
	CashDeleted      int64   `json:"cash_deleted"`
	TasksDeleted     int64   `json:"tasks_deleted"`
	DebtReverted     bool    `json:"debt_reverted"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	OperatorPayment  *string `json:"operator_payment_id,omitempty"`
}

// DeletePayment removes a payment together with everything its settlement
// wrote, and backs its amount out of the linked operator debt.
func (s *Service) DeletePayment(ctx context.Context, paymentID uuid.UUID, actor Actor) (*DeleteResult, error) {
	ctx, log := logging.With(ctx, "payment_id", paymentID)

	release, err := s.locker.Acquire(ctx, lock.PaymentKey(paymentID))
	if err != nil {
		return nil, fmt.Errorf("DeletePayment: %w", err)
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("DeletePayment: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("DeletePayment: %w", err)
	}

	res := &DeleteResult{PaymentID: p.ID}

	if p.Status == domain.PaymentStatusPaid && settlesDebt(p) {
		debt, err := s.debts.GetForUpdate(ctx, tx, *p.OperatorPaymentID)
		if err != nil {
			return nil, fmt.Errorf("DeletePayment: operator payment: %w", err)
		}
		paid, status := debt.RevertSettlement(p.Amount)
		if err := s.debts.UpdatePaid(ctx, tx, debt.ID, paid, status); err != nil {
			return nil, fmt.Errorf("DeletePayment: %w", err)
		}
		res.DebtReverted = true
		res.DebtStatus = status
	}

	if res.MovementsDeleted, err = s.movements.DeleteByPayment(ctx, tx, p.ID); err != nil {
		return nil, fmt.Errorf("DeletePayment: %w", err)
	}
	if res.CashDeleted, err = s.cash.DeleteByPayment(ctx, tx, p.ID); err != nil {
		return nil, fmt.Errorf("DeletePayment: %w", err)
	}
	if res.TasksDeleted, err = s.tasks.DeleteByPayment(ctx, tx, p.ID); err != nil {
		return nil, fmt.Errorf("DeletePayment: %w", err)
	}
	if err := s.payments.Delete(ctx, tx, p.ID); err != nil {
		return nil, fmt.Errorf("DeletePayment: %w", err)
	}

	payload := deletedPayload{
		MovementsDeleted: res.MovementsDeleted,
		CashDeleted:      res.CashDeleted,
		TasksDeleted:     res.TasksDeleted,
		DebtReverted:     res.DebtReverted,
		Amount:           p.Amount.String(),
		Currency:         string(p.Currency),
	}
	if p.OperatorPaymentID != nil {
		id := p.OperatorPaymentID.String()
		payload.OperatorPayment = &id
	}
	if err := s.writePaymentEvent(ctx, tx, p.ID, domain.PaymentEventTypeDeleted, actor, payload); err != nil {
		return nil, fmt.Errorf("DeletePayment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("DeletePayment: commit: %w", err)
	}

	log.Info("payment deleted",
		"movements_deleted", res.MovementsDeleted,
		"cash_deleted", res.CashDeleted,
		"debt_reverted", res.DebtReverted,
	)
	return res, nil
}
