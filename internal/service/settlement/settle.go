package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/lock"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/notify"
)

const notifyTimeout = 10 * time.Second

type SettleRequest struct {
	PaymentID        uuid.UUID
	DatePaid         time.Time
	Reference        string
	FundingAccountID *uuid.UUID
	Actor            Actor
}

type Outcome struct {
	Payment          *domain.Payment
	Replayed         bool
	Backfilled       bool
	Degraded         bool
	Movements        []domain.LedgerMovement
	FundingAccountID uuid.UUID
	BaseAmount       decimal.Decimal
	FXMovement       *domain.LedgerMovement
	FXDeferred       bool
}

type settledPayload struct {
	LedgerMovementID uuid.UUID   `json:"ledger_movement_id"`
	MovementIDs      []uuid.UUID `json:"movement_ids"`
	FundingAccountID uuid.UUID   `json:"funding_account_id"`
	BaseAmount       string      `json:"base_amount"`
	RateTier         string      `json:"rate_tier"`
	Degraded         bool        `json:"degraded,omitempty"`
	Backfilled       bool        `json:"backfilled,omitempty"`
	DebtStatus       string      `json:"debt_status,omitempty"`
}

type replayPayload struct {
	DatePaid  string `json:"date_paid"`
	Reference string `json:"reference"`
}

// SettlePayment marks a payment paid and writes its postings. Calling it
// again for a settled payment only refreshes date_paid and reference.
func (s *Service) SettlePayment(ctx context.Context, req SettleRequest) (*Outcome, error) {
	ctx, log := logging.With(ctx, "payment_id", req.PaymentID)

	release, err := s.locker.Acquire(ctx, lock.PaymentKey(req.PaymentID))
	if err != nil {
		return nil, fmt.Errorf("SettlePayment: %w", err)
	}
	defer release()

	out, err := s.settleLocked(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("SettlePayment: %w", err)
	}

	if out.Replayed {
		log.Info("settlement replayed", "date_paid", out.Payment.DatePaid)
		return out, nil
	}

	log.Info("payment settled",
		"ledger_movement_id", out.Payment.LedgerMovementID,
		"movements", len(out.Movements),
		"funding_account_id", out.FundingAccountID,
		"base_amount", out.BaseAmount.String(),
		"degraded", out.Degraded,
		"backfilled", out.Backfilled,
	)

	s.afterSettle(ctx, out)
	return out, nil
}

func (s *Service) settleLocked(ctx context.Context, req SettleRequest) (*Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settleLocked: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("settleLocked: %w", err)
	}

	datePaid := req.DatePaid
	if datePaid.IsZero() {
		// A replay without a date keeps the one already recorded.
		if p.IsSettled() && p.DatePaid != nil {
			datePaid = *p.DatePaid
		} else {
			datePaid = s.today()
		}
	}
	reference := req.Reference
	if reference == "" {
		reference = p.Reference
	}

	if p.IsSettled() {
		if err := s.payments.UpdateSettlementInfo(ctx, tx, p.ID, datePaid, reference); err != nil {
			return nil, fmt.Errorf("settleLocked: %w", err)
		}
		payload := replayPayload{DatePaid: datePaid.Format(time.DateOnly), Reference: reference}
		if err := s.writePaymentEvent(ctx, tx, p.ID, domain.PaymentEventTypeSettlementReplayed, req.Actor, payload); err != nil {
			return nil, fmt.Errorf("settleLocked: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("settleLocked: commit: %w", err)
		}
		p.DatePaid = &datePaid
		p.Reference = reference
		return &Outcome{Payment: p, Replayed: true}, nil
	}

	// A PAID row without a movement predates the ledger. Its debt was already
	// counted when it was marked paid, so only the postings are backfilled.
	backfill := p.Status == domain.PaymentStatusPaid

	res, err := s.applySettlement(ctx, tx, p, postingOptions{
		datePaid:         datePaid,
		reference:        reference,
		actor:            req.Actor,
		fundingAccountID: req.FundingAccountID,
		touchDebt:        !backfill,
	})
	if err != nil {
		return nil, fmt.Errorf("settleLocked: %w", err)
	}

	if err := s.payments.MarkSettled(ctx, tx, p.ID, datePaid, reference, res.primary.ID); err != nil {
		return nil, fmt.Errorf("settleLocked: %w", err)
	}
	if err := s.writePaymentEvent(ctx, tx, p.ID, domain.PaymentEventTypeSettled, req.Actor, newSettledPayload(res, backfill)); err != nil {
		return nil, fmt.Errorf("settleLocked: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("settleLocked: commit: %w", err)
	}

	p.Status = domain.PaymentStatusPaid
	p.DatePaid = &datePaid
	p.Reference = reference
	p.LedgerMovementID = &res.primary.ID

	return &Outcome{
		Payment:          p,
		Backfilled:       backfill,
		Degraded:         res.degraded,
		Movements:        res.movements,
		FundingAccountID: res.funding.ID,
		BaseAmount:       res.baseAmount,
	}, nil
}

func newSettledPayload(res *postingResult, backfill bool) settledPayload {
	ids := make([]uuid.UUID, len(res.movements))
	for i, m := range res.movements {
		ids[i] = m.ID
	}
	return settledPayload{
		LedgerMovementID: res.primary.ID,
		MovementIDs:      ids,
		FundingAccountID: res.funding.ID,
		BaseAmount:       res.baseAmount.String(),
		RateTier:         string(res.rate.Tier),
		Degraded:         res.degraded,
		Backfilled:       backfill,
		DebtStatus:       string(res.debtStatus),
	}
}

// afterSettle runs the secondary effects of a committed settlement. Neither
// can undo it: a failed FX evaluation is queued for the retry worker and the
// notification is sent in the background.
func (s *Service) afterSettle(ctx context.Context, out *Outcome) {
	log := logging.FromContext(ctx)
	p := out.Payment

	fxMovement, err := s.EvaluateFX(ctx, p.ID)
	if err != nil {
		log.Warn("fx evaluation failed, queued for retry", "error", err)
		out.FXDeferred = true
		msg := err.Error()
		task := &domain.PostingTask{
			ID:        uuid.New(),
			PaymentID: p.ID,
			Kind:      domain.PostingTaskFXEvaluation,
			LastError: &msg,
			CreatedAt: s.now(),
		}
		if err := s.tasks.Enqueue(ctx, task); err != nil {
			log.Error("failed to enqueue fx evaluation", "error", err)
		}
	}
	out.FXMovement = fxMovement

	if p.PayerType == domain.PayerTypeCustomer && p.Direction == domain.DirectionIncome {
		s.notifyReceived(ctx, p)
	}
}

func (s *Service) notifyReceived(ctx context.Context, p *domain.Payment) {
	event := notify.PaymentReceived{
		PaymentID:   p.ID,
		OperationID: p.OperationID,
		Amount:      p.Amount,
		Currency:    string(p.Currency),
		Method:      string(p.Method),
		DatePaid:    *p.DatePaid,
		Reference:   p.Reference,
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		if err := s.notifier.PaymentReceived(nctx, event); err != nil {
			logging.FromContext(nctx).Warn("payment received notification failed", "error", err)
		}
	}()
}
