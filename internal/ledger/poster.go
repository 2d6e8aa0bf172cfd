package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

type movementRepository interface {
	Create(ctx context.Context, tx *sql.Tx, m *domain.LedgerMovement) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerMovement, int, error)
	Totals(ctx context.Context, accountID uuid.UUID) (inflows, outflows decimal.Decimal, err error)
}

type accountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialAccount, error)
}

type MovementInput struct {
	Type              domain.MovementType
	Concept           string
	Currency          domain.Currency
	Amount            decimal.Decimal
	ExchangeRate      *decimal.Decimal
	Method            string
	AccountID         uuid.UUID
	OperationID       *uuid.UUID
	PaymentID         *uuid.UUID
	OperatorPaymentID *uuid.UUID
	LeadID            *uuid.UUID
	SellerID          *uuid.UUID
	OperatorID        *uuid.UUID
	CreatedBy         *uuid.UUID
}

type Poster struct {
	movements movementRepository
	accounts  accountReader
	places    int32
	now       func() time.Time
}

func NewPoster(movements movementRepository, accounts accountReader, places int32) *Poster {
	return &Poster{
		movements: movements,
		accounts:  accounts,
		places:    places,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Post appends one movement inside tx. Base currency amounts are copied
// as-is; foreign amounts are multiplied by the supplied rate.
func (p *Poster) Post(ctx context.Context, tx *sql.Tx, in MovementInput) (*domain.LedgerMovement, error) {
	base, err := p.baseEquivalent(in)
	if err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}

	m := &domain.LedgerMovement{
		ID:                   uuid.New(),
		Type:                 in.Type,
		Concept:              in.Concept,
		Currency:             in.Currency,
		AmountOriginal:       in.Amount,
		AmountBaseEquivalent: base,
		Method:               in.Method,
		AccountID:            in.AccountID,
		OperationID:          in.OperationID,
		PaymentID:            in.PaymentID,
		OperatorPaymentID:    in.OperatorPaymentID,
		LeadID:               in.LeadID,
		SellerID:             in.SellerID,
		OperatorID:           in.OperatorID,
		CreatedAt:            p.now(),
		CreatedBy:            in.CreatedBy,
	}
	if !in.Currency.IsBase() {
		rate := *in.ExchangeRate
		m.ExchangeRate = &rate
	}

	if err := p.movements.Create(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}
	return m, nil
}

func (p *Poster) baseEquivalent(in MovementInput) (decimal.Decimal, error) {
	if !in.Type.IsValid() {
		return decimal.Zero, fmt.Errorf("movement type %q: %w", in.Type, domain.ErrInvalidRequest)
	}
	if !in.Currency.IsValid() {
		return decimal.Zero, domain.ErrInvalidCurrency
	}
	if !in.Amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	if in.AccountID == uuid.Nil {
		return decimal.Zero, fmt.Errorf("account id missing: %w", domain.ErrInvalidRequest)
	}

	if in.Currency.IsBase() {
		return in.Amount, nil
	}
	if in.ExchangeRate == nil || !in.ExchangeRate.IsPositive() {
		return decimal.Zero, domain.ErrInvalidRate
	}
	return in.Amount.Mul(*in.ExchangeRate).Round(p.places), nil
}

// Balance derives the account balance from its opening amount and every
// movement posted to it.
func (p *Poster) Balance(ctx context.Context, accountID uuid.UUID) (*domain.AccountBalance, error) {
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Balance: %w", err)
	}

	inflows, outflows, err := p.movements.Totals(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Balance: %w", err)
	}

	return &domain.AccountBalance{
		AccountID:      account.ID,
		Currency:       account.Currency,
		InitialBalance: account.InitialBalance,
		Inflows:        inflows,
		Outflows:       outflows,
		Balance:        account.InitialBalance.Add(inflows).Sub(outflows),
	}, nil
}

func (p *Poster) MovementsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerMovement, int, error) {
	if _, err := p.accounts.GetByID(ctx, accountID); err != nil {
		return nil, 0, fmt.Errorf("MovementsForAccount: %w", err)
	}
	movements, total, err := p.movements.GetByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("MovementsForAccount: %w", err)
	}
	return movements, total, nil
}
