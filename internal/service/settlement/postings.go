package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/fx"
	"github.com/josh-kwaku/agency-ledger/internal/ledger"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/service/accounts"
)

// fundingLeg pins the money side of a settlement when it differs from the
// payment itself, as in a bulk transfer paid from another currency.
type fundingLeg struct {
	account  *domain.FinancialAccount
	currency domain.Currency
	amount   decimal.Decimal
	rate     *decimal.Decimal
}

type postingOptions struct {
	datePaid         time.Time
	reference        string
	actor            Actor
	fundingAccountID *uuid.UUID
	funding          *fundingLeg

	// debt is the operator debt already locked by the caller.
	debt      *domain.OperatorPayment
	touchDebt bool
}

type postingResult struct {
	primary    *domain.LedgerMovement
	movements  []domain.LedgerMovement
	funding    *domain.FinancialAccount
	baseAmount decimal.Decimal
	rate       fx.Rate
	degraded   bool
	debtStatus domain.DebtStatus
}

type resultRule struct {
	code    string
	name    string
	typ     domain.MovementType
	concept string
}

// resultRules classifies the income statement side of a settlement by
// direction and payer.
var resultRules = map[domain.Direction]map[domain.PayerType]resultRule{
	domain.DirectionIncome: {
		domain.PayerTypeCustomer: {accounts.CodeSales, "Sales Income", domain.MovementTypeIncome, "Customer payment"},
		domain.PayerTypeOperator: {accounts.CodeOperatorCost, "Operator Cost", domain.MovementTypeIncome, "Operator refund"},
	},
	domain.DirectionExpense: {
		domain.PayerTypeCustomer: {accounts.CodeAdminExpense, "Administrative Expense", domain.MovementTypeExpense, "Customer refund"},
		domain.PayerTypeOperator: {accounts.CodeOperatorCost, "Operator Cost", domain.MovementTypeOperatorPayment, "Operator payment"},
	},
}

// applySettlement writes every posting of a settlement inside tx. Rates are
// resolved and the debt validated before the first write, so a failure here
// leaves nothing behind once tx is rolled back.
func (s *Service) applySettlement(ctx context.Context, tx *sql.Tx, p *domain.Payment, opts postingOptions) (*postingResult, error) {
	if !p.Method.IsValid() {
		return nil, fmt.Errorf("applySettlement: %q: %w", p.Method, domain.ErrInvalidMethod)
	}
	rule, ok := resultRules[p.Direction][p.PayerType]
	if !ok {
		return nil, fmt.Errorf("applySettlement: %s/%s: %w", p.Direction, p.PayerType, domain.ErrInvalidRequest)
	}

	base, rate, err := s.rates.ToBase(ctx, p.Amount, p.Currency, opts.datePaid, p.ExchangeRate)
	if err != nil {
		return nil, fmt.Errorf("applySettlement: %w", err)
	}
	var paymentRate *decimal.Decimal
	if !p.Currency.IsBase() {
		v := rate.Value
		paymentRate = &v
	}

	var newPaid decimal.Decimal
	var newStatus domain.DebtStatus
	debt := opts.debt
	if opts.touchDebt && settlesDebt(p) {
		if debt == nil {
			debt, err = s.debts.GetForUpdate(ctx, tx, *p.OperatorPaymentID)
			if err != nil {
				return nil, fmt.Errorf("applySettlement: operator payment: %w", err)
			}
		}
		if debt.Currency != p.Currency {
			return nil, fmt.Errorf("applySettlement: debt in %s, payment in %s: %w", debt.Currency, p.Currency, domain.ErrCurrencyMismatch)
		}
		newPaid, newStatus, err = debt.ApplySettlement(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("applySettlement: %w", err)
		}
	}

	var tags movementTags
	if p.OperationID != nil {
		if tags, err = s.operationTags(ctx, *p.OperationID); err != nil {
			return nil, fmt.Errorf("applySettlement: %w", err)
		}
	}

	leg := opts.funding
	if leg == nil {
		account, err := s.locator.FundingAccount(ctx, tx, p.Method, p.Currency, opts.fundingAccountID)
		if err != nil {
			return nil, fmt.Errorf("applySettlement: %w", err)
		}
		leg = &fundingLeg{account: account, currency: p.Currency, amount: p.Amount, rate: paymentRate}
	}

	res := &postingResult{funding: leg.account, baseAmount: base, rate: rate}

	cashType := domain.MovementTypeIncome
	if p.Direction == domain.DirectionExpense {
		cashType = domain.MovementTypeExpense
	}
	created, err := s.cash.CreateIfAbsent(ctx, tx, &domain.CashMovement{
		ID:           uuid.New(),
		PaymentID:    p.ID,
		AccountID:    leg.account.ID,
		Type:         cashType,
		Amount:       leg.amount,
		Currency:     leg.currency,
		MovementDate: opts.datePaid,
		Notes:        opts.reference,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("applySettlement: %w", err)
	}
	if !created {
		logging.FromContext(ctx).Info("cash movement already recorded for payment")
	}

	input := func(typ domain.MovementType, concept string, accountID uuid.UUID) ledger.MovementInput {
		return ledger.MovementInput{
			Type:              typ,
			Concept:           concept,
			Currency:          p.Currency,
			Amount:            p.Amount,
			ExchangeRate:      paymentRate,
			Method:            string(p.Method),
			AccountID:         accountID,
			OperationID:       p.OperationID,
			PaymentID:         &p.ID,
			OperatorPaymentID: p.OperatorPaymentID,
			LeadID:            tags.leadID,
			SellerID:          tags.sellerID,
			OperatorID:        p.OperatorID,
			CreatedBy:         opts.actor.UserID,
		}
	}

	post := func(in ledger.MovementInput) (*domain.LedgerMovement, error) {
		m, err := s.poster.Post(ctx, tx, in)
		if err != nil {
			return nil, err
		}
		res.movements = append(res.movements, *m)
		return m, nil
	}

	locate := func(code, name string) (uuid.UUID, error) {
		loc, err := s.locator.LocateOrCreate(ctx, tx, code, p.Currency, name)
		if err != nil {
			return uuid.Nil, err
		}
		if loc.Degraded {
			res.degraded = true
		}
		return loc.Account.ID, nil
	}

	// Balance reduction: receivable for money coming in, payable for an
	// operator being paid. Both are INCOME-typed to keep the sign convention
	// of the balance view.
	var reductionCode, reductionName, reductionConcept string
	switch {
	case p.Direction == domain.DirectionIncome:
		reductionCode, reductionName, reductionConcept = accounts.CodeReceivable, "Accounts Receivable", "Receivable collected"
	case p.PayerType == domain.PayerTypeOperator:
		reductionCode, reductionName, reductionConcept = accounts.CodePayable, "Accounts Payable", "Payable settled"
	}
	if reductionCode != "" {
		accountID, err := locate(reductionCode, reductionName)
		if err != nil {
			return nil, fmt.Errorf("applySettlement: %w", err)
		}
		res.primary, err = post(input(domain.MovementTypeIncome, withReference(reductionConcept, opts.reference), accountID))
		if err != nil {
			return nil, fmt.Errorf("applySettlement: balance reduction: %w", err)
		}
	}

	resultAccountID, err := locate(rule.code, rule.name)
	if err != nil {
		return nil, fmt.Errorf("applySettlement: %w", err)
	}
	if _, err := post(input(rule.typ, withReference(rule.concept, opts.reference), resultAccountID)); err != nil {
		return nil, fmt.Errorf("applySettlement: result: %w", err)
	}

	fundingIn := input(cashType, withReference(rule.concept, opts.reference), leg.account.ID)
	fundingIn.Currency = leg.currency
	fundingIn.Amount = leg.amount
	fundingIn.ExchangeRate = leg.rate
	if leg.rate == nil && leg.currency == p.Currency {
		fundingIn.ExchangeRate = paymentRate
	}
	if leg.currency.IsBase() {
		fundingIn.ExchangeRate = nil
	}
	funding, err := post(fundingIn)
	if err != nil {
		return nil, fmt.Errorf("applySettlement: funding: %w", err)
	}
	if res.primary == nil {
		res.primary = funding
	}

	if debt != nil && opts.touchDebt && settlesDebt(p) {
		if err := s.debts.UpdatePaid(ctx, tx, debt.ID, newPaid, newStatus); err != nil {
			return nil, fmt.Errorf("applySettlement: %w", err)
		}
		res.debtStatus = newStatus
	}

	return res, nil
}

// settlesDebt reports whether settling p pays down an operator debt.
func settlesDebt(p *domain.Payment) bool {
	return p.PayerType == domain.PayerTypeOperator &&
		p.Direction == domain.DirectionExpense &&
		p.OperatorPaymentID != nil
}

type movementTags struct {
	leadID   *uuid.UUID
	sellerID *uuid.UUID
}

func (s *Service) operationTags(ctx context.Context, operationID uuid.UUID) (movementTags, error) {
	op, err := s.operations.GetByID(ctx, operationID)
	if errors.Is(err, domain.ErrNotFound) {
		return movementTags{}, nil
	}
	if err != nil {
		return movementTags{}, fmt.Errorf("operationTags: %w", err)
	}
	return movementTags{leadID: op.LeadID, sellerID: op.SellerID}, nil
}

func withReference(concept, reference string) string {
	if reference == "" {
		return concept
	}
	return concept + " - " + reference
}
