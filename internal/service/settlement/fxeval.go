package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/ledger"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/service/accounts"
)

type fxPostedPayload struct {
	LedgerMovementID uuid.UUID `json:"ledger_movement_id"`
	MovementType     string    `json:"movement_type"`
	Amount           string    `json:"amount"`
	AssumedRate      string    `json:"assumed_rate"`
}

type exposure struct {
	currency    domain.Currency
	assumedRate decimal.Decimal
	customer    bool
}

// EvaluateFX posts the exchange difference between the rate assumed when
// the operation was sold or costed and the rate the payment was realized
// at. It returns nil when there is nothing to post or the difference was
// already posted.
func (s *Service) EvaluateFX(ctx context.Context, paymentID uuid.UUID) (*domain.LedgerMovement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("EvaluateFX: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("EvaluateFX: %w", err)
	}
	if !p.IsSettled() || p.OperationID == nil {
		return nil, nil
	}

	exp, ok, err := s.exposureFor(ctx, p)
	if err != nil || !ok {
		return nil, err
	}

	posted, err := s.movements.ExistsForPayment(ctx, tx, p.ID, domain.MovementTypeFXGain, domain.MovementTypeFXLoss)
	if err != nil {
		return nil, fmt.Errorf("EvaluateFX: %w", err)
	}
	if posted {
		return nil, nil
	}

	delta, err := s.fxDelta(ctx, p, exp)
	if err != nil {
		return nil, fmt.Errorf("EvaluateFX: %w", err)
	}
	if delta.IsZero() {
		return nil, nil
	}

	gain := delta.IsPositive()
	if !exp.customer {
		gain = !gain
	}
	typ, concept := domain.MovementTypeFXLoss, "FX loss"
	if gain {
		typ, concept = domain.MovementTypeFXGain, "FX gain"
	}

	loc, err := s.locator.LocateOrCreate(ctx, tx, accounts.CodeFXResult, domain.BaseCurrency, "FX Result")
	if err != nil {
		return nil, fmt.Errorf("EvaluateFX: %w", err)
	}

	m, err := s.poster.Post(ctx, tx, ledger.MovementInput{
		Type:              typ,
		Concept:           withReference(concept, p.Reference),
		Currency:          domain.BaseCurrency,
		Amount:            delta.Abs(),
		Method:            string(p.Method),
		AccountID:         loc.Account.ID,
		OperationID:       p.OperationID,
		PaymentID:         &p.ID,
		OperatorPaymentID: p.OperatorPaymentID,
		OperatorID:        p.OperatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("EvaluateFX: %w", err)
	}

	payload := fxPostedPayload{
		LedgerMovementID: m.ID,
		MovementType:     string(typ),
		Amount:           m.AmountOriginal.String(),
		AssumedRate:      exp.assumedRate.String(),
	}
	if err := s.writePaymentEvent(ctx, tx, p.ID, domain.PaymentEventTypeFXPosted, Actor{Source: "system"}, payload); err != nil {
		return nil, fmt.Errorf("EvaluateFX: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("EvaluateFX: commit: %w", err)
	}

	logging.FromContext(ctx).Info("fx difference posted",
		"payment_id", p.ID,
		"type", typ,
		"amount", m.AmountOriginal.String(),
		"assumed_rate", exp.assumedRate.String(),
	)
	return m, nil
}

// exposureFor reports the foreign currency exposure a payment settles
// against: the sale side for customer receipts, the cost side for operator
// payments.
func (s *Service) exposureFor(ctx context.Context, p *domain.Payment) (exposure, bool, error) {
	var customer bool
	switch {
	case p.PayerType == domain.PayerTypeCustomer && p.Direction == domain.DirectionIncome:
		customer = true
	case p.PayerType == domain.PayerTypeOperator && p.Direction == domain.DirectionExpense:
	default:
		return exposure{}, false, nil
	}

	op, err := s.operations.GetByID(ctx, *p.OperationID)
	if err != nil {
		return exposure{}, false, fmt.Errorf("exposureFor: %w", err)
	}

	currency, rate := op.CostCurrency, op.CostExchangeRate
	if customer {
		currency, rate = op.SaleCurrency, op.SaleExchangeRate
	}
	if currency.IsBase() || rate == nil || !rate.IsPositive() {
		return exposure{}, false, nil
	}
	return exposure{currency: currency, assumedRate: *rate, customer: customer}, true, nil
}

// fxDelta is realizedBase - covered*assumedRate, where covered is the part of
// the operation's foreign amount the payment paid for at the realized rate.
func (s *Service) fxDelta(ctx context.Context, p *domain.Payment, exp exposure) (decimal.Decimal, error) {
	primary, err := s.primaryMovement(ctx, p)
	if err != nil {
		return decimal.Zero, err
	}
	realizedBase := primary.AmountBaseEquivalent

	var realizedRate decimal.Decimal
	if p.Currency == exp.currency && primary.ExchangeRate != nil {
		realizedRate = *primary.ExchangeRate
	} else {
		rate, err := s.rates.Resolve(ctx, exp.currency, *p.DatePaid)
		if err != nil {
			return decimal.Zero, fmt.Errorf("fxDelta: %w", err)
		}
		realizedRate = rate.Value
	}
	if !realizedRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fxDelta: %w", domain.ErrInvalidRate)
	}

	covered := realizedBase.Div(realizedRate)
	assumedBase := covered.Mul(exp.assumedRate)
	return realizedBase.Sub(assumedBase).Round(s.places), nil
}

func (s *Service) primaryMovement(ctx context.Context, p *domain.Payment) (*domain.LedgerMovement, error) {
	movements, err := s.movements.GetByPaymentID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("primaryMovement: %w", err)
	}
	for i := range movements {
		if movements[i].ID == *p.LedgerMovementID {
			return &movements[i], nil
		}
	}
	return nil, fmt.Errorf("primaryMovement: %s: %w", *p.LedgerMovementID, domain.ErrNotFound)
}
