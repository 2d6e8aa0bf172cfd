package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
	"github.com/josh-kwaku/agency-ledger/internal/repository"
)

const (
	CodeReceivable   = "1.1.03"
	CodePayable      = "2.1.01"
	CodeSales        = "4.1.01"
	CodeOperatorCost = "4.2.01"
	CodeAdminExpense = "4.3.01"
	CodeFXResult     = "4.4.01"
)

type chartRepository interface {
	GetByCode(ctx context.Context, tx *sql.Tx, code string) (*domain.ChartAccount, error)
}

type accountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialAccount, error)
	GetLinked(ctx context.Context, tx *sql.Tx, chartAccountID uuid.UUID, currency domain.Currency) (*domain.FinancialAccount, error)
	GetDefaultBucket(ctx context.Context, tx *sql.Tx, accountType domain.AccountType, currency domain.Currency) (*domain.FinancialAccount, error)
	Create(ctx context.Context, tx *sql.Tx, a *domain.FinancialAccount) error
	CreateLinkedIfAbsent(ctx context.Context, tx *sql.Tx, a *domain.FinancialAccount) error
}

// Located is the financial account a posting lands on. Degraded is set when
// the chart entry was missing and a currency default bucket was used.
type Located struct {
	Account  *domain.FinancialAccount
	Degraded bool
}

type Locator struct {
	charts   chartRepository
	accounts accountRepository

	bucketLock func(ctx context.Context, tx *sql.Tx, key string) error
	now        func() time.Time
}

func NewLocator(charts chartRepository, accounts accountRepository) *Locator {
	return &Locator{
		charts:     charts,
		accounts:   accounts,
		bucketLock: repository.AdvisoryLock,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// LocateOrCreate returns the account linked to the chart entry code in
// currency, creating it on first use. A missing or inactive chart entry is a
// configuration problem, not a payment failure: it is logged and the
// currency's default bucket is returned instead.
func (l *Locator) LocateOrCreate(ctx context.Context, tx *sql.Tx, code string, currency domain.Currency, name string) (Located, error) {
	if !currency.IsValid() {
		return Located{}, fmt.Errorf("LocateOrCreate: %w", domain.ErrInvalidCurrency)
	}

	chart, err := l.charts.GetByCode(ctx, tx, code)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Located{}, fmt.Errorf("LocateOrCreate: %w", err)
	}
	if err != nil || !chart.IsActive {
		return l.degraded(ctx, tx, code, currency)
	}

	account, err := l.accounts.GetLinked(ctx, tx, chart.ID, currency)
	if errors.Is(err, domain.ErrAccountNotFound) {
		account, err = l.createLinked(ctx, tx, chart, currency, name)
	}
	if err != nil {
		return Located{}, fmt.Errorf("LocateOrCreate: %w", err)
	}
	if !account.IsActive {
		return l.degraded(ctx, tx, code, currency)
	}

	return Located{Account: account}, nil
}

func (l *Locator) createLinked(ctx context.Context, tx *sql.Tx, chart *domain.ChartAccount, currency domain.Currency, name string) (*domain.FinancialAccount, error) {
	if name == "" {
		name = chart.Name
	}
	chartID := chart.ID
	candidate := &domain.FinancialAccount{
		ID:             uuid.New(),
		Name:           fmt.Sprintf("%s (%s)", name, currency),
		Type:           domain.AccountTypeLedger,
		Currency:       currency,
		ChartAccountID: &chartID,
		InitialBalance: decimal.Zero,
		IsActive:       true,
		CreatedAt:      l.now(),
	}
	// A concurrent first use may win the insert; the re-read returns whichever row exists.
	if err := l.accounts.CreateLinkedIfAbsent(ctx, tx, candidate); err != nil {
		return nil, err
	}
	return l.accounts.GetLinked(ctx, tx, chart.ID, currency)
}

func (l *Locator) degraded(ctx context.Context, tx *sql.Tx, code string, currency domain.Currency) (Located, error) {
	bucketType := domain.AccountTypeBank
	if !currency.IsBase() {
		bucketType = domain.AccountTypeUSD
	}

	logging.FromContext(ctx).Warn("degraded chart configuration, posting to default bucket",
		"chart_code", code,
		"currency", currency,
		"bucket_type", bucketType,
	)

	account, err := l.DefaultBucket(ctx, tx, bucketType, currency)
	if err != nil {
		return Located{}, fmt.Errorf("LocateOrCreate: %s: %w", code, err)
	}
	return Located{Account: account, Degraded: true}, nil
}

// DefaultBucket returns the oldest active account of accountType in
// currency, creating one when none exists.
func (l *Locator) DefaultBucket(ctx context.Context, tx *sql.Tx, accountType domain.AccountType, currency domain.Currency) (*domain.FinancialAccount, error) {
	if err := l.bucketLock(ctx, tx, fmt.Sprintf("bucket:%s:%s", accountType, currency)); err != nil {
		return nil, fmt.Errorf("DefaultBucket: %w", err)
	}

	account, err := l.accounts.GetDefaultBucket(ctx, tx, accountType, currency)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("DefaultBucket: %w", err)
	}

	account = &domain.FinancialAccount{
		ID:             uuid.New(),
		Name:           fmt.Sprintf("Default %s %s", accountType, currency),
		Type:           accountType,
		Currency:       currency,
		InitialBalance: decimal.Zero,
		IsActive:       true,
		CreatedAt:      l.now(),
	}
	if err := l.accounts.Create(ctx, tx, account); err != nil {
		return nil, fmt.Errorf("DefaultBucket: %w", err)
	}
	logging.FromContext(ctx).Info("created default bucket", "account_id", account.ID, "type", accountType, "currency", currency)
	return account, nil
}

// FundingAccount resolves where the money of a payment physically moves.
// An explicit account must exist, be active, match the payment currency and
// be a bank account for transfers. Without one the method's default bucket
// is used.
func (l *Locator) FundingAccount(ctx context.Context, tx *sql.Tx, method domain.PaymentMethod, currency domain.Currency, explicitID *uuid.UUID) (*domain.FinancialAccount, error) {
	accountType, ok := method.AccountType()
	if !ok {
		return nil, fmt.Errorf("FundingAccount: %q: %w", method, domain.ErrInvalidMethod)
	}

	if explicitID == nil {
		account, err := l.DefaultBucket(ctx, tx, accountType, currency)
		if err != nil {
			return nil, fmt.Errorf("FundingAccount: %w", err)
		}
		return account, nil
	}

	account, err := l.accounts.GetByID(ctx, *explicitID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("FundingAccount: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("FundingAccount: %w", err)
	}
	if err := CheckFunding(account, method, currency); err != nil {
		return nil, fmt.Errorf("FundingAccount: %w", err)
	}
	return account, nil
}

// CheckFunding validates an explicitly chosen funding account.
func CheckFunding(account *domain.FinancialAccount, method domain.PaymentMethod, currency domain.Currency) error {
	if !account.IsActive {
		return domain.ErrAccountInactive
	}
	if method == domain.PaymentMethodTransfer && account.Type != domain.AccountTypeBank {
		return domain.ErrAccountTypeMismatch
	}
	if account.Currency != currency {
		return domain.ErrCurrencyMismatch
	}
	return nil
}
