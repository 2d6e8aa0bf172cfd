package accounts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

type fakeCharts map[string]*domain.ChartAccount

func (f fakeCharts) GetByCode(_ context.Context, _ *sql.Tx, code string) (*domain.ChartAccount, error) {
	c, ok := f[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type fakeAccounts struct {
	rows []*domain.FinancialAccount
}

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*domain.FinancialAccount, error) {
	for _, a := range f.rows {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (f *fakeAccounts) GetLinked(_ context.Context, _ *sql.Tx, chartID uuid.UUID, currency domain.Currency) (*domain.FinancialAccount, error) {
	for _, a := range f.rows {
		if a.ChartAccountID != nil && *a.ChartAccountID == chartID && a.Currency == currency {
			return a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (f *fakeAccounts) GetDefaultBucket(_ context.Context, _ *sql.Tx, t domain.AccountType, currency domain.Currency) (*domain.FinancialAccount, error) {
	for _, a := range f.rows {
		if a.Type == t && a.Currency == currency && a.IsActive {
			return a, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (f *fakeAccounts) Create(_ context.Context, _ *sql.Tx, a *domain.FinancialAccount) error {
	f.rows = append(f.rows, a)
	return nil
}

func (f *fakeAccounts) CreateLinkedIfAbsent(ctx context.Context, tx *sql.Tx, a *domain.FinancialAccount) error {
	if _, err := f.GetLinked(ctx, tx, *a.ChartAccountID, a.Currency); err == nil {
		return nil
	}
	f.rows = append(f.rows, a)
	return nil
}

func newTestLocator(charts fakeCharts, accts *fakeAccounts) *Locator {
	l := NewLocator(charts, accts)
	l.bucketLock = func(context.Context, *sql.Tx, string) error { return nil }
	return l
}

func chart(code string, active bool) *domain.ChartAccount {
	return &domain.ChartAccount{ID: uuid.New(), Code: code, Name: code, Category: domain.ChartCategoryAsset, IsActive: active}
}

func TestLocateOrCreate_CreatesOncePerCurrency(t *testing.T) {
	ar := chart(CodeReceivable, true)
	accts := &fakeAccounts{}
	l := newTestLocator(fakeCharts{CodeReceivable: ar}, accts)
	ctx := context.Background()

	first, err := l.LocateOrCreate(ctx, nil, CodeReceivable, domain.CurrencyUSD, "Accounts Receivable")
	require.NoError(t, err)
	assert.False(t, first.Degraded)
	assert.Equal(t, domain.AccountTypeLedger, first.Account.Type)
	assert.Equal(t, domain.CurrencyUSD, first.Account.Currency)

	second, err := l.LocateOrCreate(ctx, nil, CodeReceivable, domain.CurrencyUSD, "Accounts Receivable")
	require.NoError(t, err)
	assert.Equal(t, first.Account.ID, second.Account.ID)

	ars, err := l.LocateOrCreate(ctx, nil, CodeReceivable, domain.CurrencyARS, "Accounts Receivable")
	require.NoError(t, err)
	assert.NotEqual(t, first.Account.ID, ars.Account.ID)
	assert.Len(t, accts.rows, 2)
}

func TestLocateOrCreate_DegradedFallback(t *testing.T) {
	tests := []struct {
		name     string
		charts   fakeCharts
		currency domain.Currency
		wantType domain.AccountType
	}{
		{name: "missing chart ARS", charts: fakeCharts{}, currency: domain.CurrencyARS, wantType: domain.AccountTypeBank},
		{name: "missing chart USD", charts: fakeCharts{}, currency: domain.CurrencyUSD, wantType: domain.AccountTypeUSD},
		{name: "inactive chart", charts: fakeCharts{CodeSales: chart(CodeSales, false)}, currency: domain.CurrencyARS, wantType: domain.AccountTypeBank},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLocator(tc.charts, &fakeAccounts{})

			loc, err := l.LocateOrCreate(context.Background(), nil, CodeSales, tc.currency, "Sales")
			require.NoError(t, err)
			assert.True(t, loc.Degraded)
			assert.Equal(t, tc.wantType, loc.Account.Type)
			assert.Equal(t, tc.currency, loc.Account.Currency)
		})
	}
}

func TestFundingAccount(t *testing.T) {
	bankARS := &domain.FinancialAccount{ID: uuid.New(), Type: domain.AccountTypeBank, Currency: domain.CurrencyARS, IsActive: true, CreatedAt: time.Now()}
	cashARS := &domain.FinancialAccount{ID: uuid.New(), Type: domain.AccountTypeCash, Currency: domain.CurrencyARS, IsActive: true}
	closed := &domain.FinancialAccount{ID: uuid.New(), Type: domain.AccountTypeBank, Currency: domain.CurrencyARS, IsActive: false}
	usd := &domain.FinancialAccount{ID: uuid.New(), Type: domain.AccountTypeUSD, Currency: domain.CurrencyUSD, IsActive: true}

	id := func(a *domain.FinancialAccount) *uuid.UUID { return &a.ID }
	missing := uuid.New()

	tests := []struct {
		name     string
		method   domain.PaymentMethod
		currency domain.Currency
		explicit *uuid.UUID
		wantID   uuid.UUID
		wantType domain.AccountType
		wantErr  error
	}{
		{name: "explicit bank for transfer", method: domain.PaymentMethodTransfer, currency: domain.CurrencyARS, explicit: id(bankARS), wantID: bankARS.ID},
		{name: "explicit cash for transfer", method: domain.PaymentMethodTransfer, currency: domain.CurrencyARS, explicit: id(cashARS), wantErr: domain.ErrAccountTypeMismatch},
		{name: "explicit cash for cash", method: domain.PaymentMethodCash, currency: domain.CurrencyARS, explicit: id(cashARS), wantID: cashARS.ID},
		{name: "inactive account", method: domain.PaymentMethodTransfer, currency: domain.CurrencyARS, explicit: id(closed), wantErr: domain.ErrAccountInactive},
		{name: "currency mismatch", method: domain.PaymentMethodUSDCash, currency: domain.CurrencyARS, explicit: id(usd), wantErr: domain.ErrCurrencyMismatch},
		{name: "unknown account", method: domain.PaymentMethodCash, currency: domain.CurrencyARS, explicit: &missing, wantErr: domain.ErrAccountNotFound},
		{name: "unknown method", method: "CHEQUE", currency: domain.CurrencyARS, wantErr: domain.ErrInvalidMethod},
		{name: "default bucket for MP", method: domain.PaymentMethodMP, currency: domain.CurrencyARS, wantType: domain.AccountTypeMP},
		{name: "default bucket reuses existing", method: domain.PaymentMethodTransfer, currency: domain.CurrencyARS, wantID: bankARS.ID},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			accts := &fakeAccounts{rows: []*domain.FinancialAccount{bankARS, cashARS, closed, usd}}
			l := newTestLocator(fakeCharts{}, accts)

			account, err := l.FundingAccount(context.Background(), nil, tc.method, tc.currency, tc.explicit)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			if tc.wantID != uuid.Nil {
				assert.Equal(t, tc.wantID, account.ID)
			}
			if tc.wantType != "" {
				assert.Equal(t, tc.wantType, account.Type)
				assert.Equal(t, tc.currency, account.Currency)
			}
		})
	}
}
